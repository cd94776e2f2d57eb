package health

import (
	"sync"
	"testing"
)

func TestEmptyMonitorIsUnknown(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Unknown {
		t.Fatalf("Overall() = %q, want %q", got, Unknown)
	}
	s := m.Summary()
	if s["status"] != "unknown" {
		t.Fatalf("Summary status = %v", s["status"])
	}
	if c := s["components"].(map[string]string); len(c) != 0 {
		t.Fatalf("components = %v", c)
	}
}

func TestOverallIsWorstSource(t *testing.T) {
	tests := []struct {
		name    string
		updates map[string]Status
		want    Status
	}{
		{"all healthy", map[string]Status{`software:HKLM:native`: Healthy, "startup:folder:user": Healthy}, Healthy},
		{"one denied root", map[string]Status{`software:HKLM:native`: Healthy, `software:HKLM:wow6432`: Degraded}, Degraded},
		{"unhealthy beats degraded", map[string]Status{"sysinfo:gpu": Degraded, "sysinfo:cpu": Unhealthy}, Unhealthy},
		{"unknown is worst", map[string]Status{"sysinfo:cpu": Unhealthy, "sysinfo:disk": Unknown}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			for name, st := range tt.updates {
				m.Update(name, st, "")
			}
			if got := m.Overall(); got != tt.want {
				t.Fatalf("Overall() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdateCoercesInvalidStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("startup:folder:common", Status("ok"), "")

	c, ok := m.Get("startup:folder:common")
	if !ok || c.Status != Unhealthy {
		t.Fatalf("Get = %+v, %v", c, ok)
	}
	if _, ok := m.Get("startup:folder:user"); ok {
		t.Fatal("Get should miss an unrecorded source")
	}
}

func TestPipeline(t *testing.T) {
	cases := map[string]string{
		`startup:HKLM\SOFTWARE\Microsoft\Windows\CurrentVersion\Run`: "startup",
		"software:HKCU:user": "software",
		"sysinfo:gpu":        "sysinfo",
		"bare":               "bare",
		":odd":               ":odd",
	}
	for in, want := range cases {
		if got := Pipeline(in); got != want {
			t.Errorf("Pipeline(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSummaryGroupsPipelines(t *testing.T) {
	m := NewMonitor()
	m.Update("software:HKLM:native", Healthy, "")
	m.Update("software:HKLM:wow6432", Degraded, "access denied")
	m.Update("startup:folder:user", Healthy, "")

	s := m.Summary()
	pipelines := s["pipelines"].(map[string]string)
	if pipelines["software"] != "degraded" || pipelines["startup"] != "healthy" {
		t.Fatalf("pipelines = %v", pipelines)
	}
	problems := s["problems"].([]Check)
	if len(problems) != 1 || problems[0].Name != "software:HKLM:wow6432" || problems[0].Message != "access denied" {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestSummaryConsistentUnderConcurrentUpdates(t *testing.T) {
	m := NewMonitor()
	m.Update("sysinfo:cpu", Healthy, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update("sysinfo:cpu", Degraded, "sample failed")
			} else {
				m.Update("sysinfo:cpu", Healthy, "")
			}
		}(i)
		go func() {
			defer wg.Done()
			s := m.Summary()
			overall := s["status"].(string)
			if comp := s["components"].(map[string]string)["sysinfo:cpu"]; overall != comp {
				t.Errorf("summary inconsistency: overall=%q cpu=%q", overall, comp)
			}
			if p := s["pipelines"].(map[string]string)["sysinfo"]; p != overall {
				t.Errorf("pipeline %q disagrees with overall %q", p, overall)
			}
		}()
	}
	wg.Wait()
}

func TestNilMonitorUpdateIsNoop(t *testing.T) {
	var m *Monitor
	m.Update("software:HKLM:native", Degraded, "access denied")
}

func TestAllSortedByName(t *testing.T) {
	m := NewMonitor()
	m.Update("startup:folder:user", Healthy, "")
	m.Update("software:HKLM:native", Degraded, "access denied")

	all := m.All()
	if len(all) != 2 || all[0].Name != "software:HKLM:native" {
		t.Fatalf("All() not sorted: %+v", all)
	}
}

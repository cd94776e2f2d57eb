//go:build !windows

package shell

type unsupported struct{}

func (unsupported) Launch(string, string) error        { return ErrUnsupported }
func (unsupported) ResolveLink(string) (string, error) { return "", ErrUnsupported }
func (unsupported) CompanyName(string) (string, error) { return "", ErrUnsupported }

// Native returns implementations that fail with ErrUnsupported.
func Native() Platform {
	return Platform{
		Launcher: unsupported{},
		Links:    unsupported{},
		Versions: unsupported{},
	}
}

// StartupFolders has no meaning outside Windows.
func StartupFolders() (Folders, error) {
	return Folders{}, ErrUnsupported
}

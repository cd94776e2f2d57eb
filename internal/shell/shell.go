// Package shell wraps the Windows shell facilities the inventory needs:
// shell-execute, .lnk resolution, version-resource lookups and the Startup
// known folders.
package shell

import "errors"

// ErrUnsupported is returned by every native call outside Windows.
var ErrUnsupported = errors.New("shell: unsupported on this platform")

// Launcher starts a program through shell-execute semantics and returns as
// soon as the launch call itself completes.
type Launcher interface {
	Launch(file, args string) error
}

// LinkResolver returns the absolute target of a .lnk shortcut.
type LinkResolver interface {
	ResolveLink(path string) (string, error)
}

// VersionReader reads fields from an executable's version resource.
type VersionReader interface {
	CompanyName(path string) (string, error)
}

// Folders holds the per-user and all-users Startup folders.
type Folders struct {
	User   string
	Common string
}

// Platform bundles the native implementations.
type Platform struct {
	Launcher Launcher
	Links    LinkResolver
	Versions VersionReader
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(file, args string) error

func (f LauncherFunc) Launch(file, args string) error { return f(file, args) }

// LinkResolverFunc adapts a function to LinkResolver.
type LinkResolverFunc func(path string) (string, error)

func (f LinkResolverFunc) ResolveLink(path string) (string, error) { return f(path) }

// VersionReaderFunc adapts a function to VersionReader.
type VersionReaderFunc func(path string) (string, error)

func (f VersionReaderFunc) CompanyName(path string) (string, error) { return f(path) }

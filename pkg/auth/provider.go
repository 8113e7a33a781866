package auth

import (
	"context"
	"net/url"
)

// Result codes passed to ForwardPlatformResult by the host application.
const (
	ResultOK       = -1 // The login UI returned normally; data carries the redirect parameters.
	ResultCanceled = 0  // The login UI was dismissed before the provider redirected back.
)

// Launcher is the live UI host able to show the provider's login page,
// e.g. a browser opener or an HTTP redirect for the current request.
//
// Launch must return once the page is shown, without waiting for the user.
// Coordinator.Start holds its serialization lock for the duration of the call,
// so a blocking Launch delays every later Start. Work that waits for the user
// belongs in a goroutine watching ctx, which is cancelled when the attempt settles.
type Launcher interface {
	Launch(ctx context.Context, authURL string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, authURL string) error

func (f LauncherFunc) Launch(ctx context.Context, authURL string) error { return f(ctx, authURL) }

// OpenRequest describes one provider session open issued by the coordinator.
type OpenRequest struct {
	Attempt     AttemptID
	Permissions []string
	RequestCode int
	Launcher    Launcher
}

// SessionAdapter defines the contract of the identity provider shim driven by a Coordinator.
// Implementations translate provider callbacks into Events delivered to the registered handler,
// with at most one terminal event (succeeded, failed, cancelled) per Open.
type SessionAdapter interface {
	// Register installs the handler that receives every Event. Called once by NewCoordinator.
	Register(handler EventHandler)
	// Open starts the external login flow for req. ctx is cancelled once the attempt settles.
	Open(ctx context.Context, req OpenRequest) error
	// ForwardResult hands a platform result (e.g. an OAuth redirect) to the adapter.
	// Results whose requestCode does not match the open flow are ignored.
	ForwardResult(requestCode, resultCode int, data url.Values)
}

package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getvergo/vergo-agent/pkg/browser"
	"github.com/getvergo/vergo-agent/pkg/logging"
	"github.com/getvergo/vergo-agent/pkg/types"
)

// settleDelay gives the login submission time to land before the outcome is
// judged.
const settleDelay = 1500 * time.Millisecond

// Executor performs the authentication sequence against a live browser
// session: navigate to the login URL, detect the form, submit credentials,
// and verify the page left the form behind. It implements the engine's
// login capability.
type Executor struct {
	session *browser.Session
	log     *logging.Logger
}

// NewExecutor creates a login executor bound to one browser session.
func NewExecutor(session *browser.Session, log *logging.Logger) *Executor {
	if log == nil {
		log, _ = logging.NewLogger("login")
	}
	return &Executor{session: session, log: log}
}

// Login runs the full authentication sequence. Every failure is terminal for
// the calling run; no retries happen at this level.
func (e *Executor) Login(ctx context.Context, cfg *types.LoginConfig) error {
	e.log.Infof("navigating to login page %s", cfg.URL)
	if err := e.session.Navigate(ctx, cfg.URL); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}

	pageHTML, err := e.session.Content()
	if err != nil {
		return fmt.Errorf("reading login page: %w", err)
	}
	form, err := DetectForm(pageHTML)
	if err != nil {
		return fmt.Errorf("detecting login form: %w", err)
	}

	if err := e.session.Type(ctx, form.Username, cfg.Username); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := e.session.Type(ctx, form.Password, cfg.Password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}
	if cfg.Tenant != "" && form.Tenant != "" {
		if err := e.session.Type(ctx, form.Tenant, cfg.Tenant); err != nil {
			return fmt.Errorf("filling tenant: %w", err)
		}
	}

	if err := e.session.Click(ctx, form.Submit); err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}

	return e.verify(ctx, cfg, form)
}

// verify judges whether the submission authenticated the session. A
// configured success selector wins; otherwise the page must have left the
// login form (password field gone or URL changed).
func (e *Executor) verify(ctx context.Context, cfg *types.LoginConfig, form FormSelectors) error {
	if sel := successSelector(cfg); sel != "" {
		if err := e.session.WaitForSelector(ctx, sel, 0); err != nil {
			return fmt.Errorf("post-login selector %q never appeared: %w", sel, err)
		}
		return nil
	}

	e.wait(ctx, settleDelay)

	current := e.session.CurrentURL()
	if !strings.HasPrefix(current, cfg.URL) {
		e.log.Infof("login succeeded, landed on %s", current)
		return nil
	}

	pageHTML, err := e.session.Content()
	if err != nil {
		return fmt.Errorf("reading post-login page: %w", err)
	}
	if _, err := DetectForm(pageHTML); err == nil {
		return fmt.Errorf("credentials rejected: login form still present")
	}
	return nil
}

// successSelector reads the optional post-login wait selector from the login
// options.
func successSelector(cfg *types.LoginConfig) string {
	if cfg.Options == nil {
		return ""
	}
	if sel, ok := cfg.Options["successSelector"].(string); ok {
		return sel
	}
	return ""
}

// wait blocks for d or until the context is canceled.
func (e *Executor) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// File: internal/platform/portal.go
package platform

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/batch"
	"github.com/karacadev/portalkeeper/internal/config"
)

// Portal drives the student portal login form.
type Portal struct {
	cfg    config.PlatformConfig
	logger *zap.Logger
}

// NewPortal builds the student portal adapter.
func NewPortal(cfg config.PlatformConfig, logger *zap.Logger) *Portal {
	return &Portal{cfg: cfg, logger: logger.Named("portal")}
}

func (p *Portal) Name() string     { return "portal" }
func (p *Portal) LoginURL() string { return p.cfg.LoginURL }

// portalProbe is the shape returned by the in-page inspection scripts.
type portalProbe struct {
	HasError bool   `json:"hasError"`
	Rejected bool   `json:"rejected"`
	LoggedIn bool   `json:"loggedIn"`
	Reason   string `json:"reason"`
}

// portalErrorJS inspects the post-submit page for error banners. The
// #mail-status element carries the wrong-credentials message; a generic
// alert box means something else went sideways.
const portalErrorJS = `(() => {
	const status = document.querySelector('#mail-status');
	if (status) {
		const text = (status.textContent || '').trim();
		if (text.toLowerCase().includes('wrong')) {
			return { hasError: true, rejected: true, reason: text };
		}
	}
	const alert = document.querySelector('.alert.alert-danger');
	if (alert) {
		return { hasError: true, rejected: false, reason: (alert.textContent || '').trim() };
	}
	return { hasError: false };
})()`

// portalSuccessJS checks several independent signals that the dashboard
// loaded; the login form disappearing is the weakest and checked last.
const portalSuccessJS = `(() => {
	const title = document.querySelector('h2.contentTitle');
	if (title && title.textContent.includes('Welcome to AOL')) {
		return { loggedIn: true, reason: 'welcome title present' };
	}
	if (document.querySelector('a[href*="logout"]')) {
		return { loggedIn: true, reason: 'logout link present' };
	}
	if (document.querySelector('.dashboard, .content-area, .main-content')) {
		return { loggedIn: true, reason: 'dashboard content present' };
	}
	const url = window.location.href;
	if (!url.includes('/login') && !url.includes('/signin') && !document.querySelector('#emailForm')) {
		return { loggedIn: true, reason: 'left the login page' };
	}
	return { loggedIn: false, reason: 'still on login page' };
})()`

// Login fills and submits the portal form, then classifies the result.
func (p *Portal) Login(ctx context.Context, page Page, creds Credentials) Outcome {
	log := p.logger.With(zap.String("username", creds.Username))

	if err := page.WaitVisible(ctx, "#emailForm", 15*time.Second); err != nil {
		return Transient("login form did not appear: " + err.Error())
	}

	if err := page.Fill(ctx, "#emailForm", creds.Username); err != nil {
		return Transient(err.Error())
	}
	_ = batch.Jitter(ctx, time.Second, 2*time.Second)

	if err := page.Fill(ctx, "#pwdform", creds.Password); err != nil {
		return Transient(err.Error())
	}
	_ = batch.Jitter(ctx, time.Second, 2*time.Second)

	if err := page.Click(ctx, ".btnlogin"); err != nil {
		return Transient(err.Error())
	}

	// The portal redirects sluggishly; give it room before inspecting.
	_ = batch.Jitter(ctx, 2*time.Second, 4*time.Second)

	var probe portalProbe
	if err := page.Evaluate(ctx, portalErrorJS, &probe); err != nil {
		return Transient("could not inspect page after submit: " + err.Error())
	}
	if probe.HasError {
		log.Warn("Portal reported an error after submit.", zap.String("reason", probe.Reason))
		if probe.Rejected {
			return CredentialsRejected(probe.Reason)
		}
		return Transient(probe.Reason)
	}

	if err := page.Evaluate(ctx, portalSuccessJS, &probe); err != nil {
		return Transient("could not verify login state: " + err.Error())
	}
	if !probe.LoggedIn {
		return Transient("portal login not confirmed: " + probe.Reason)
	}

	log.Info("Portal login confirmed.", zap.String("reason", probe.Reason))
	return Success()
}

// portalHealthJS decides whether the profile page still shows an
// authenticated view.
const portalHealthJS = `(() => {
	if (document.querySelector('input[name="username"]') ||
		document.querySelector('input[type="submit"]') ||
		document.querySelector('button[type="submit"]')) {
		return { loggedIn: false, reason: 'login form present' };
	}
	const h1 = document.querySelector('h1');
	if (h1 && h1.textContent.includes('Welcome')) {
		return { loggedIn: true, reason: 'welcome heading present' };
	}
	if (document.querySelector('.profile-content, .user-profile, .student-profile')) {
		return { loggedIn: true, reason: 'profile content present' };
	}
	if (document.querySelector('.dashboard, .content-area, .main-content')) {
		return { loggedIn: true, reason: 'dashboard content present' };
	}
	const campus = Array.from(document.querySelectorAll('h6')).some(h => h.textContent.includes('Campus'));
	if (campus) {
		return { loggedIn: true, reason: 'campus options present' };
	}
	if (document.body.textContent.length > 100 && !document.querySelector('form')) {
		return { loggedIn: true, reason: 'content present without forms' };
	}
	return { loggedIn: false, reason: 'no authenticated indicator found' };
})()`

// CheckHealth navigates to the profile page and probes for an
// authenticated view.
func (p *Portal) CheckHealth(ctx context.Context, page Page) (bool, string) {
	if err := page.Navigate(ctx, p.cfg.ProfileURL, p.cfg.NavTimeout); err != nil {
		return false, "profile navigation failed: " + trimErr(err)
	}

	var probe portalProbe
	if err := page.Evaluate(ctx, portalHealthJS, &probe); err != nil {
		return false, "health probe failed: " + trimErr(err)
	}
	return probe.LoggedIn, probe.Reason
}

// trimErr keeps reasons single-line for log and message fields.
func trimErr(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", " ")
}

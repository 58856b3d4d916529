// File: internal/platform/classroom.go
package platform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/batch"
	"github.com/karacadev/portalkeeper/internal/config"
)

// Classroom drives the classroom platform (Canvas) login form.
type Classroom struct {
	cfg    config.PlatformConfig
	logger *zap.Logger
}

// NewClassroom builds the classroom platform adapter.
func NewClassroom(cfg config.PlatformConfig, logger *zap.Logger) *Classroom {
	return &Classroom{cfg: cfg, logger: logger.Named("classroom")}
}

func (c *Classroom) Name() string     { return "classroom" }
func (c *Classroom) LoginURL() string { return c.cfg.LoginURL }

// classroomErrorJS inspects Canvas flash messages. The credentials hint is
// matched in English and the portal's secondary locale.
const classroomErrorJS = `(() => {
	const flash = document.querySelector('.ic-flash-error');
	if (flash) {
		const text = (flash.textContent || '').trim();
		const lower = text.toLowerCase();
		if (lower.includes('verify your username or password') ||
			lower.includes('username or password')) {
			return { hasError: true, rejected: true, reason: text };
		}
		return { hasError: true, rejected: false, reason: text };
	}
	return { hasError: false };
})()`

const classroomSuccessJS = `(() => {
	if (document.querySelector('.user_name')) {
		return { loggedIn: true, reason: 'user menu present' };
	}
	if (document.querySelector('.courses')) {
		return { loggedIn: true, reason: 'course list present' };
	}
	const phone = document.querySelector('span.hidden-phone');
	if (phone && phone.textContent.length > 0) {
		return { loggedIn: true, reason: 'dashboard header present' };
	}
	return { loggedIn: false, reason: 'no dashboard indicator found' };
})()`

// Login fills and submits the Canvas form, then classifies the result.
func (c *Classroom) Login(ctx context.Context, page Page, creds Credentials) Outcome {
	log := c.logger.With(zap.String("username", creds.Username))

	if err := page.WaitVisible(ctx, "#pseudonym_session_unique_id", 15*time.Second); err != nil {
		return Transient("login form did not appear: " + err.Error())
	}

	if err := page.Fill(ctx, "#pseudonym_session_unique_id", creds.Username); err != nil {
		return Transient(err.Error())
	}
	_ = batch.Jitter(ctx, time.Second, 2*time.Second)

	if err := page.Fill(ctx, "#pseudonym_session_password", creds.Password); err != nil {
		return Transient(err.Error())
	}
	_ = batch.Jitter(ctx, time.Second, 2*time.Second)

	if err := page.Click(ctx, `input[type="submit"]`); err != nil {
		return Transient(err.Error())
	}

	_ = batch.Jitter(ctx, 3*time.Second, 5*time.Second)

	var probe portalProbe
	if err := page.Evaluate(ctx, classroomErrorJS, &probe); err != nil {
		return Transient("could not inspect page after submit: " + err.Error())
	}
	if probe.HasError {
		log.Warn("Classroom reported an error after submit.", zap.String("reason", probe.Reason))
		if probe.Rejected {
			return CredentialsRejected(probe.Reason)
		}
		return Transient(probe.Reason)
	}

	if err := page.Evaluate(ctx, classroomSuccessJS, &probe); err != nil {
		return Transient("could not verify login state: " + err.Error())
	}
	if !probe.LoggedIn {
		return Transient("classroom login not confirmed: " + probe.Reason)
	}

	log.Info("Classroom login confirmed.", zap.String("reason", probe.Reason))
	return Success()
}

// classroomHealthJS decides whether the communication-preferences page
// still shows an authenticated view.
const classroomHealthJS = `(() => {
	if (document.querySelector('#pseudonym_session_unique_id') ||
		document.querySelector('input[type="submit"]') ||
		document.querySelector('input[type="email"]')) {
		return { loggedIn: false, reason: 'login form present' };
	}
	if (document.querySelector('.communication-preferences, .profile-content, .user-preferences')) {
		return { loggedIn: true, reason: 'preferences content present' };
	}
	if (document.querySelector('.dashboard-header, .user_name, .courses, .dashboard')) {
		return { loggedIn: true, reason: 'dashboard content present' };
	}
	if (document.querySelector('.ic-app, .ic-Layout, .ic-Dashboard')) {
		return { loggedIn: true, reason: 'application chrome present' };
	}
	const h1 = document.querySelector('h1');
	if (h1 && /Profile|Communication|Preferences/.test(h1.textContent)) {
		return { loggedIn: true, reason: 'profile heading present' };
	}
	if (document.body.textContent.length > 100 && !document.querySelector('form')) {
		return { loggedIn: true, reason: 'content present without forms' };
	}
	return { loggedIn: false, reason: 'no authenticated indicator found' };
})()`

// CheckHealth navigates to the preferences page and probes for an
// authenticated view.
func (c *Classroom) CheckHealth(ctx context.Context, page Page) (bool, string) {
	if err := page.Navigate(ctx, c.cfg.ProfileURL, c.cfg.NavTimeout); err != nil {
		return false, "preferences navigation failed: " + trimErr(err)
	}

	var probe portalProbe
	if err := page.Evaluate(ctx, classroomHealthJS, &probe); err != nil {
		return false, "health probe failed: " + trimErr(err)
	}
	return probe.LoggedIn, probe.Reason
}

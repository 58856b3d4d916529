package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/config"
)

func TestOutcomeClassification(t *testing.T) {
	assert.True(t, Success().OK())
	assert.False(t, CredentialsRejected("wrong password").OK())
	assert.False(t, Transient("timeout").OK())

	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "credentials_rejected", OutcomeCredentialsRejected.String())
	assert.Equal(t, "transient", OutcomeTransient.String())
}

func TestOutcomeCarriesReason(t *testing.T) {
	o := CredentialsRejected("your email or password is wrong")
	assert.Equal(t, OutcomeCredentialsRejected, o.Kind)
	assert.Equal(t, "your email or password is wrong", o.Reason)

	o = Transient("alert banner present")
	assert.Equal(t, OutcomeTransient, o.Kind)
	assert.Equal(t, "alert banner present", o.Reason)
}

func TestAdapterIdentity(t *testing.T) {
	logger := zap.NewNop()
	pCfg := config.PlatformConfig{LoginURL: "https://portal.example/login"}
	cCfg := config.PlatformConfig{LoginURL: "https://classroom.example/login/canvas"}

	p := NewPortal(pCfg, logger)
	c := NewClassroom(cCfg, logger)

	assert.Equal(t, "portal", p.Name())
	assert.Equal(t, "classroom", c.Name())
	assert.Equal(t, pCfg.LoginURL, p.LoginURL())
	assert.Equal(t, cCfg.LoginURL, c.LoginURL())

	// Both satisfy the shared contract.
	var _ Platform = p
	var _ Platform = c
}

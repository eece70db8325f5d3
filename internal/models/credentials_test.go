package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsValidate(t *testing.T) {
	valid := Credentials{AccessToken: "a", ExpiresIn: 3600, IssuedAt: 1700000000, APIDomain: "https://www.zohoapis.eu"}
	require.NoError(t, valid.Validate())

	noRefresh := valid
	noRefresh.RefreshToken = ""
	assert.NoError(t, noRefresh.Validate())

	missingToken := valid
	missingToken.AccessToken = ""
	assert.Error(t, missingToken.Validate())

	missingDomain := valid
	missingDomain.APIDomain = ""
	assert.Error(t, missingDomain.Validate())

	zeroExpiry := valid
	zeroExpiry.ExpiresIn = 0
	assert.Error(t, zeroExpiry.Validate())

	var nilCreds *Credentials
	assert.Error(t, nilCreds.Validate())
}

func TestCredentialsRemaining(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	c := Credentials{AccessToken: "a", ExpiresIn: 3600, IssuedAt: issued.Unix(), APIDomain: "x"}

	assert.Equal(t, time.Hour, c.Remaining(issued))
	assert.Equal(t, 300*time.Second, c.Remaining(issued.Add(3300*time.Second)))
	assert.Less(t, c.Remaining(issued.Add(2*time.Hour)), time.Duration(0))
	assert.Equal(t, issued.Add(time.Hour), c.ExpiresAt())
}

func TestCredentialsRefreshed(t *testing.T) {
	c := &Credentials{AccessToken: "old", RefreshToken: "r", ExpiresIn: 3600, IssuedAt: 1, APIDomain: "d"}
	now := time.Unix(1700000500, 0)

	next := c.Refreshed("new", 1800, now)
	assert.Equal(t, "new", next.AccessToken)
	assert.Equal(t, "r", next.RefreshToken)
	assert.Equal(t, int64(1800), next.ExpiresIn)
	assert.Equal(t, now.Unix(), next.IssuedAt)
	assert.Equal(t, "old", c.AccessToken, "original must not be modified")
}

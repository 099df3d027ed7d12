package password

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/passpolicy/internal/model"
)

func TestHasRepeatingPattern(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"abcabc", true},
		{"aaaa", true},
		{"xyz-1-xyz", true},
		{"aaa", false},
		{"abcdef", false},
		{"ab", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, HasRepeatingPattern(tt.password))
		})
	}
}

func TestHasSequentialChars(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"xABCx", true},
		{"xcbax", true},
		{"Qwerty", true},
		{"321go", true},
		{"zzASDzz", true},
		{"cxz", true},
		{"a1b2c3", false},
		{"Tr0ub4dor", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, HasSequentialChars(tt.password))
		})
	}
}

func TestIsCommonPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"exact", "password", true},
		{"contains entry", "MyPassword!", true},
		{"fragment of entry", "dra", true},
		{"case insensitive", "LetMeIn2024", true},
		{"unrelated", "Zebra$Tundra", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCommonPassword(DefaultCommonPasswords, tt.password))
		})
	}

	assert.False(t, IsCommonPassword([]string{"hunter2"}, "password"))
	assert.True(t, IsCommonPassword([]string{"Hunter2"}, "xxhunter2xx"))
}

func TestContainsUserInfo(t *testing.T) {
	identity := model.IdentityInfo{
		FirstName: "Alice",
		LastName:  "Whitmore",
		Email:     "alice.w@example.com",
		Username:  "awhit",
	}

	tests := []struct {
		name     string
		identity model.IdentityInfo
		password string
		want     bool
	}{
		{"first name", identity, "ALICE2024!", true},
		{"last name", identity, "xx-whitmore-xx", true},
		{"email", identity, "alice.w@example.com!", true},
		{"password inside field", identity, "ice", true},
		{"username", identity, "AWHIT99", true},
		{"no match", identity, "Zq9!Tundra", false},
		{"empty identity", model.IdentityInfo{}, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsUserInfo(tt.identity, tt.password))
		})
	}
}

func TestClassify(t *testing.T) {
	c := classify("aB3!!-é")
	assert.True(t, c.upper)
	assert.True(t, c.lower)
	assert.True(t, c.digit)
	assert.Equal(t, 3, c.special)

	c = classify("ÀÉÎ")
	assert.False(t, c.upper)
	assert.False(t, c.lower)
	assert.Zero(t, c.special)
}

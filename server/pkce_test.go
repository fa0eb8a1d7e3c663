package server

import (
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestValidateChallenge(t *testing.T) {
	valid := oauth2.S256ChallengeFromVerifier(oauth2.GenerateVerifier())

	tests := []struct {
		name      string
		challenge string
		method    string
		want      bool
	}{
		{name: "S256", challenge: valid, method: "S256", want: true},
		{name: "plain rejected", challenge: valid, method: "plain", want: false},
		{name: "lowercase method rejected", challenge: valid, method: "s256", want: false},
		{name: "empty method", challenge: valid, method: "", want: false},
		{name: "empty challenge", challenge: "", method: "S256", want: false},
		{name: "too short", challenge: valid[:42], method: "S256", want: false},
		{name: "too long", challenge: valid + "A", method: "S256", want: false},
		{name: "padding", challenge: valid[:42] + "=", method: "S256", want: false},
		{name: "standard base64 alphabet", challenge: valid[:42] + "+", method: "S256", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateChallenge(tt.challenge, tt.method); got != tt.want {
				t.Errorf("ValidateChallenge(%q, %q) = %v, want %v", tt.challenge, tt.method, got, tt.want)
			}
		})
	}
}

func TestValidateVerifier(t *testing.T) {
	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	minVerifier := strings.Repeat("a", MinCodeVerifierLength)
	maxVerifier := strings.Repeat("~", MaxCodeVerifierLength)

	tests := []struct {
		name      string
		challenge string
		verifier  string
		want      bool
	}{
		{name: "matching verifier", challenge: challenge, verifier: verifier, want: true},
		{name: "minimum length", challenge: oauth2.S256ChallengeFromVerifier(minVerifier), verifier: minVerifier, want: true},
		{name: "maximum length", challenge: oauth2.S256ChallengeFromVerifier(maxVerifier), verifier: maxVerifier, want: true},
		{name: "wrong verifier", challenge: challenge, verifier: oauth2.GenerateVerifier(), want: false},
		{name: "verifier used as challenge", challenge: verifier, verifier: verifier, want: false},
		{name: "too short", challenge: oauth2.S256ChallengeFromVerifier(minVerifier[1:]), verifier: minVerifier[1:], want: false},
		{name: "too long", challenge: oauth2.S256ChallengeFromVerifier(maxVerifier + "a"), verifier: maxVerifier + "a", want: false},
		{name: "invalid character", challenge: oauth2.S256ChallengeFromVerifier(minVerifier + "!"), verifier: minVerifier + "!", want: false},
		{name: "space", challenge: oauth2.S256ChallengeFromVerifier(minVerifier + " "), verifier: minVerifier + " ", want: false},
		{name: "empty", challenge: challenge, verifier: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateVerifier(tt.challenge, tt.verifier); got != tt.want {
				t.Errorf("ValidateVerifier() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Every generated verifier validates against its own challenge and no other.
func TestValidateVerifier_Property(t *testing.T) {
	var previous string
	for i := 0; i < 100; i++ {
		verifier := oauth2.GenerateVerifier()
		challenge := oauth2.S256ChallengeFromVerifier(verifier)

		if !ValidateChallenge(challenge, PKCEMethodS256) {
			t.Fatalf("ValidateChallenge(%q) = false", challenge)
		}
		if !ValidateVerifier(challenge, verifier) {
			t.Fatalf("ValidateVerifier() = false for generated pair %d", i)
		}
		if previous != "" && ValidateVerifier(challenge, previous) {
			t.Fatalf("ValidateVerifier() accepted a foreign verifier at %d", i)
		}
		previous = verifier
	}
}

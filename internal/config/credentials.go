package config

import "os"

const (
	UsernameEnv = "SSH_USERNAME"
	PasswordEnv = "SSH_PASSWORD"
)

// Credentials are shared by every connection of a run.
type Credentials struct {
	Username string
	Password string
}

// String never reveals the password.
func (c Credentials) String() string {
	return c.Username + ":<redacted>"
}

// CredentialsFromEnv reads SSH_USERNAME and SSH_PASSWORD. An unset variable
// is a *CredentialMissing error; an empty password is allowed.
func CredentialsFromEnv() (Credentials, error) {
	user, ok := os.LookupEnv(UsernameEnv)
	if !ok || user == "" {
		return Credentials{}, &CredentialMissing{Var: UsernameEnv}
	}
	pass, ok := os.LookupEnv(PasswordEnv)
	if !ok {
		return Credentials{}, &CredentialMissing{Var: PasswordEnv}
	}
	return Credentials{Username: user, Password: pass}, nil
}

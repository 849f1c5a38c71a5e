package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Credential is one backend access secret in a provider's pool.
type Credential struct {
	ID     string
	Secret string
	Label  string
	Active bool
}

// CredentialPool holds a provider's ordered credential list plus the
// in-memory rotation cursor. One pool exists per provider per session;
// rotation state is never persisted across sessions and the cursor resets
// at the start of every retry batch, so late-pool keys are not starved.
type CredentialPool struct {
	provider string

	mu     sync.Mutex
	creds  []Credential
	cursor int
}

func NewCredentialPool(provider string, creds []Credential) *CredentialPool {
	return &CredentialPool{
		provider: provider,
		creds:    append([]Credential(nil), creds...),
	}
}

func (p *CredentialPool) Provider() string { return p.provider }

// Add appends a credential, or replaces an existing one with the same ID.
func (p *CredentialPool) Add(c Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		if p.creds[i].ID == c.ID {
			p.creds[i] = c
			return
		}
	}
	p.creds = append(p.creds, c)
}

// Remove deletes the credential with the given ID, if present.
func (p *CredentialPool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		if p.creds[i].ID == id {
			p.creds = append(p.creds[:i], p.creds[i+1:]...)
			if p.cursor > i {
				p.cursor--
			}
			return true
		}
	}
	return false
}

// SetActive flips one credential's active flag.
func (p *CredentialPool) SetActive(id string, active bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		if p.creds[i].ID == id {
			p.creds[i].Active = active
			return true
		}
	}
	return false
}

// Active returns the active credentials in pool order.
func (p *CredentialPool) Active() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeLocked()
}

func (p *CredentialPool) activeLocked() []Credential {
	out := make([]Credential, 0, len(p.creds))
	for _, c := range p.creds {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// Next returns the next active credential, advancing the cursor circularly.
// ok is false when no active credential exists.
func (p *CredentialPool) Next() (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := p.activeLocked()
	if len(active) == 0 {
		return Credential{}, false
	}
	c := active[p.cursor%len(active)]
	p.cursor++
	return c, true
}

// ResetRotation moves the cursor back to the head of the pool.
func (p *CredentialPool) ResetRotation() {
	p.mu.Lock()
	p.cursor = 0
	p.mu.Unlock()
}

// CallWithRetry resets the cursor and invokes op once per active credential
// in rotation order. A transient failure (rate-limit/overload/quota-class,
// classified from the error text) advances to the next credential; any other
// failure returns immediately without further rotation. maxAttempts > 0
// additionally caps the number of attempts. When the whole pool fails
// transiently the result is a *CredentialsExhaustedError wrapping the last
// underlying error.
func (p *CredentialPool) CallWithRetry(ctx context.Context, maxAttempts int, op func(context.Context, Credential) error) error {
	p.ResetRotation()
	attempts := len(p.Active())
	if maxAttempts > 0 && maxAttempts < attempts {
		attempts = maxAttempts
	}
	if attempts == 0 {
		return &CredentialsExhaustedError{Provider: p.provider}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		cred, ok := p.Next()
		if !ok {
			break
		}
		err := op(ctx, cred)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if !IsTransientBackendError(err) {
			return err
		}
	}
	return &CredentialsExhaustedError{Provider: p.provider, Attempts: attempts, Err: lastErr}
}

// RedactedLabel is a display form that never leaks the secret.
func (c Credential) RedactedLabel() string {
	label := strings.TrimSpace(c.Label)
	if label == "" {
		label = c.ID
	}
	if n := len(c.Secret); n > 4 {
		return fmt.Sprintf("%s (…%s)", label, c.Secret[n-4:])
	}
	return label
}

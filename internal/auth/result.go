package auth

// Result is the outcome of resolving a session token: either Authenticated
// or Unauthenticated.
type Result interface {
	isResult()
}

// Authenticated is a token bound to a live account.
type Authenticated struct {
	Name  string
	Token string
	Usage map[string]int // per-tool counters at resolve time
}

// Unauthenticated means the token is missing, unknown, expired, or points at
// an account that no longer exists.
type Unauthenticated struct{}

func (Authenticated) isResult()   {}
func (Unauthenticated) isResult() {}

package topology

// User is a directory account created inside a lab network.
type User struct {
	Username string
	Password string
	First    string
	Last     string
}

// FullName returns "First Last".
func (u User) FullName() string {
	return u.First + " " + u.Last
}

// Vars returns the template representation of the user.
func (u User) Vars() map[string]any {
	return map[string]any{
		"username": u.Username,
		"password": u.Password,
		"first":    u.First,
		"last":     u.Last,
		"fullname": u.FullName(),
	}
}

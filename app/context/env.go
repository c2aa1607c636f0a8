package context

// Environment is the interface to the process environment.
type Environment interface {
	Get(string) string
	Set(string, string) error
}

// Getenv returns the value of key in env, or an empty string if env is nil.
func Getenv(env Environment, key string) string {
	if env == nil {
		return ""
	}
	return env.Get(key)
}

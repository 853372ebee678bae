package repository

import "fmt"

// New builds the store selected by driver: "memory", "sqlite" or "postgres".
func New(driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		return Open(driver, dsn, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
}

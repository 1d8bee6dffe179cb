package instance

import "github.com/shopperapp/shopper-backend/pkg/env"

// GetID returns the daemon instance identifier or a default value.
func GetID() string {
	return env.Get("SHOPPER_INSTANCE_ID", "syncd-0")
}

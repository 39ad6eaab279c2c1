package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// Header is echoed on every response.
	Header = "X-Ray-ID"
	// LocalsKey is where handlers and logger.WithRayID find the id.
	LocalsKey = "ray_id"
)

// New returns a middleware assigning each request a ray id. An incoming
// X-Ray-ID header is kept.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(LocalsKey, id)
		c.Set(Header, id)
		return c.Next()
	}
}

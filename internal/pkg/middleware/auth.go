package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pressline/insiderhub/internal/pkg/usercontext"
)

// RequireAuth ensures a logged-in web session; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	v := c.Locals(usercontext.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAdmin ensures a logged-in admin; redirects otherwise.
func RequireAdmin(c *fiber.Ctx) error {
	v := c.Locals(usercontext.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	if isAdmin, ok := c.Locals(usercontext.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPIAdminAuth ensures a logged-in admin for API routes and returns JSON errors instead of redirects.
func RequireAPIAdminAuth(c *fiber.Ctx) error {
	v := c.Locals(usercontext.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if isAdmin, ok := c.Locals(usercontext.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin role required",
		})
	}
	return c.Next()
}

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	v := c.Locals(usercontext.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/database"
	"github.com/pressline/insiderhub/internal/pkg/session"
	"github.com/pressline/insiderhub/internal/pkg/usercontext"
	"gorm.io/gorm"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new account. Membership state stays untouched
// until billing events arrive for the account's email.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	account, err := models.CreateAccount(strings.TrimSpace(req.Name), req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	db := database.GetDB()
	var existing models.Account
	if err := db.Where("email = ?", account.Email).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[Auth] email lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration_failed"})
	}

	if err := db.Create(account).Error; err != nil {
		log.Errorf("[Auth] account create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration_failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": account.ID, "email": account.Email})
}

// HandleLogin verifies credentials and establishes the session.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var account models.Account
	if err := database.GetDB().Where("email = ?", req.Email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials"})
		}
		log.Errorf("[Auth] account lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_failed"})
	}
	if !models.CheckPasswordHash(req.Password, account.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials"})
	}
	if account.Status != models.STATUS_ACTIVE {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account_disabled"})
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		log.Errorf("[Auth] session load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_failed"})
	}
	sess.Set(usercontext.KeyAccountID, account.ID)
	sess.Set(usercontext.KeyUsername, account.Name)
	sess.Set(usercontext.KeyIsAdmin, account.IsAdministrative())
	// Drop any cached tier from a previous login on this session.
	sess.Delete(usercontext.KeyTier)
	if err := sess.Save(); err != nil {
		log.Errorf("[Auth] session save failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_failed"})
	}

	now := time.Now()
	if err := database.GetDB().Model(&account).Update("last_login_at", now).Error; err != nil {
		log.Warnf("[Auth] last login update for account %d failed: %v", account.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": account.ID, "name": account.Name})
}

// HandleLogout destroys the session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Warnf("[Auth] session destroy failed: %v", err)
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleSetAccountRole mutates an account's role. Admin-only route.
func HandleSetAccountRole(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_account_id"})
	}
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	switch req.Role {
	case models.ROLE_USER, models.ROLE_ADMIN, models.ROLE_SUPERADMIN:
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_role"})
	}

	db := database.GetDB()
	var account models.Account
	if err := db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account_not_found"})
		}
		log.Errorf("[Auth] account lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "role_update_failed"})
	}
	if err := db.Model(&account).Update("role", req.Role).Error; err != nil {
		log.Errorf("[Auth] role update for account %d failed: %v", account.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "role_update_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": account.ID, "role": req.Role})
}

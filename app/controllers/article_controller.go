package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/database"
	"github.com/pressline/insiderhub/internal/pkg/entitlements"
	"github.com/pressline/insiderhub/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// HandleArticleAccess answers whether the current visitor may read the given
// article, without consuming quota.
func HandleArticleAccess(c *fiber.Ctx) error {
	article, err := loadArticle(c)
	if article == nil {
		return err
	}
	gate := entitlements.NewGateFromDB(database.GetDB())
	decision := gate.CanAccess(identityFromRequest(c), article)
	status := fiber.StatusOK
	if !decision.Allowed {
		status = fiber.StatusForbidden
	}
	return c.Status(status).JSON(decision)
}

// HandleArticleRead evaluates access and, for metered grants, records the
// view against the monthly allowance. Re-reading a recorded article never
// consumes additional quota.
func HandleArticleRead(c *fiber.Ctx) error {
	article, err := loadArticle(c)
	if article == nil {
		return err
	}
	gate := entitlements.NewGateFromDB(database.GetDB())
	identity := identityFromRequest(c)

	decision := gate.CanAccess(identity, article)
	if !decision.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(decision)
	}
	if decision.Metered {
		if err := gate.RecordView(identity, article); err != nil {
			log.Errorf("[Articles] recording view of article %d failed: %v", article.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "view_record_failed"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"decision": decision,
		"article": fiber.Map{
			"id":     article.ID,
			"title":  article.Title,
			"access": article.Access,
		},
	})
}

func loadArticle(c *fiber.Ctx) (*models.Article, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_article_id"})
	}
	var article models.Article
	if err := database.GetDB().First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "article_not_found"})
		}
		log.Errorf("[Articles] loading article %d failed: %v", id, err)
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "article_lookup_failed"})
	}
	return &article, nil
}

func identityFromRequest(c *fiber.Ctx) *entitlements.Identity {
	accountCtx := usercontext.GetAccountContext(c)
	return &entitlements.Identity{
		AccountID: accountCtx.AccountID,
		SessionID: accountCtx.SessionID,
	}
}

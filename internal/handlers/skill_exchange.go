package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

const (
	exchangesTable = "skill_exchanges"
	proposalsTable = "exchange_proposals"
)

type SkillExchangeHandler struct {
	DB   *gorm.DB
	Feed realtime.Publisher
}

func NewSkillExchangeHandler(db *gorm.DB, feed realtime.Publisher) *SkillExchangeHandler {
	return &SkillExchangeHandler{DB: db, Feed: feed}
}

type SkillExchangeReq struct {
	SkillOffered string `json:"skill_offered" validate:"required,max=80"`
	SkillWanted  string `json:"skill_wanted" validate:"required,max=80"`
	Description  string `json:"description" validate:"max=5000"`
	Mode         string `json:"mode" validate:"omitempty,oneof=online offline hybrid"`
	Status       string `json:"status" validate:"omitempty,oneof=open matched closed"`
}

type ProposalReq struct {
	SkillOffered string `json:"skill_offered" validate:"required,max=80"`
	Message      string `json:"message" validate:"max=2000"`
}

type ProposalStatusReq struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

func (r SkillExchangeReq) apply(s *models.SkillExchange) {
	s.SkillOffered = strings.TrimSpace(r.SkillOffered)
	s.SkillWanted = strings.TrimSpace(r.SkillWanted)
	s.Description = strings.TrimSpace(r.Description)
	if r.Mode != "" {
		s.Mode = models.ExchangeMode(r.Mode)
	}
	if r.Status != "" {
		s.Status = models.ExchangeStatus(r.Status)
	}
}

func (h *SkillExchangeHandler) List(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.SkillExchange{})
	status := c.Query("status", string(models.ExchangeOpen))
	if status != "all" {
		q = q.Where("status = ?", status)
	}
	if offered := strings.TrimSpace(c.Query("offered")); offered != "" {
		q = q.Where("LOWER(skill_offered) LIKE ?", likePattern(offered))
	}
	if wanted := strings.TrimSpace(c.Query("wanted")); wanted != "" {
		q = q.Where("LOWER(skill_wanted) LIKE ?", likePattern(wanted))
	}
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := likePattern(s)
		q = q.Where("LOWER(skill_offered) LIKE ? OR LOWER(skill_wanted) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load exchanges", err)
	}

	var rows []models.SkillExchange
	if err := q.Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&rows).Error; err != nil {
		return fail500(c, "failed to load exchanges", err)
	}
	return okPage(c, rows, p, total)
}

func (h *SkillExchangeHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var ex models.SkillExchange
	if err := h.DB.WithContext(c.UserContext()).First(&ex, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Exchange not found")
		}
		return fail500(c, "failed to load exchange", err)
	}
	return ok(c, "", ex)
}

func (h *SkillExchangeHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req SkillExchangeReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	ex := models.SkillExchange{UserID: userID, Mode: models.ExchangeOnline, Status: models.ExchangeOpen}
	req.apply(&ex)
	if err := h.DB.WithContext(c.UserContext()).Create(&ex).Error; err != nil {
		return fail500(c, "failed to save exchange", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, exchangesTable, realtime.ChangeInsert, ex.ID.String(), ex)
	return created(c, "Exchange posted", ex)
}

func (h *SkillExchangeHandler) loadOwned(c *fiber.Ctx) (*models.SkillExchange, error) {
	userID, err := getAuth(c)
	if err != nil {
		return nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return nil, err
	}

	var ex models.SkillExchange
	if err := h.DB.WithContext(c.UserContext()).First(&ex, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Exchange not found")
		}
		return nil, err
	}
	if ex.UserID != userID && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return &ex, nil
}

func (h *SkillExchangeHandler) Update(c *fiber.Ctx) error {
	ex, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var req SkillExchangeReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}
	req.apply(ex)

	if err := h.DB.WithContext(c.UserContext()).Save(ex).Error; err != nil {
		return fail500(c, "failed to update exchange", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, exchangesTable, realtime.ChangeUpdate, ex.ID.String(), ex)
	return ok(c, "Exchange updated", ex)
}

func (h *SkillExchangeHandler) Delete(c *fiber.Ctx) error {
	ex, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exchange_id = ?", ex.ID).Delete(&models.ExchangeProposal{}).Error; err != nil {
			return err
		}
		return tx.Delete(ex).Error
	})
	if err != nil {
		return fail500(c, "failed to delete exchange", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, exchangesTable, realtime.ChangeDelete, ex.ID.String(), ex)
	return c.JSON(fiber.Map{"success": true, "message": "Exchange deleted"})
}

// Propose offers a skill in return for an open exchange.
func (h *SkillExchangeHandler) Propose(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req ProposalReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var ex models.SkillExchange
	if err := gdb.First(&ex, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Exchange not found")
		}
		return fail500(c, "failed to load exchange", err)
	}
	if ex.UserID == userID {
		return fail(c, fiber.StatusBadRequest, "You cannot propose on your own exchange")
	}
	if ex.Status != models.ExchangeOpen {
		return fail(c, fiber.StatusBadRequest, "This exchange is no longer open")
	}

	var n int64
	if err := gdb.Model(&models.ExchangeProposal{}).
		Where("exchange_id = ? AND proposer_id = ? AND status = ?", ex.ID, userID, models.ProposalPending).
		Count(&n).Error; err != nil {
		return fail500(c, "failed to check proposals", err)
	}
	if n > 0 {
		return fail(c, fiber.StatusConflict, "You already have a pending proposal here")
	}

	prop := models.ExchangeProposal{
		ExchangeID:   ex.ID,
		ProposerID:   userID,
		SkillOffered: strings.TrimSpace(req.SkillOffered),
		Message:      strings.TrimSpace(req.Message),
		Status:       models.ProposalPending,
	}
	if err := gdb.Create(&prop).Error; err != nil {
		return fail500(c, "failed to send proposal", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, proposalsTable, realtime.ChangeInsert, prop.ID.String(), prop, prop.ProposerID, ex.UserID)
	return created(c, "Proposal sent", prop)
}

// ListProposals shows the proposals of an exchange to its owner.
func (h *SkillExchangeHandler) ListProposals(c *fiber.Ctx) error {
	ex, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var props []models.ExchangeProposal
	if err := h.DB.WithContext(c.UserContext()).
		Preload("Proposer").Preload("Proposer.Profile").
		Where("exchange_id = ?", ex.ID).
		Order("created_at DESC").
		Find(&props).Error; err != nil {
		return fail500(c, "failed to load proposals", err)
	}
	return ok(c, "", props)
}

// UpdateProposalStatus lets the exchange owner answer a proposal. Accepting
// one marks the exchange matched and rejects the other pending proposals.
func (h *SkillExchangeHandler) UpdateProposalStatus(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req ProposalStatusReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var prop models.ExchangeProposal
	if err := gdb.First(&prop, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Proposal not found")
		}
		return fail500(c, "failed to load proposal", err)
	}
	var ex models.SkillExchange
	if err := gdb.First(&ex, "id = ?", prop.ExchangeID).Error; err != nil {
		return fail500(c, "failed to load exchange", err)
	}
	if ex.UserID != userID {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}

	status := models.ProposalStatus(req.Status)
	if prop.Status == status {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": prop, "changed": false})
	}
	if prop.Status != models.ProposalPending {
		return fail(c, fiber.StatusBadRequest, "Proposal was already answered")
	}

	var rejected []models.ExchangeProposal
	err = gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&prop).Update("status", status).Error; err != nil {
			return err
		}
		if status != models.ProposalAccepted {
			return nil
		}
		if err := tx.Model(&ex).Update("status", models.ExchangeMatched).Error; err != nil {
			return err
		}
		if err := tx.Where("exchange_id = ? AND id <> ? AND status = ?", ex.ID, prop.ID, models.ProposalPending).
			Find(&rejected).Error; err != nil {
			return err
		}
		if len(rejected) == 0 {
			return nil
		}
		return tx.Model(&models.ExchangeProposal{}).
			Where("exchange_id = ? AND id <> ? AND status = ?", ex.ID, prop.ID, models.ProposalPending).
			Update("status", models.ProposalRejected).Error
	})
	if err != nil {
		return fail500(c, "failed to update proposal", err)
	}

	ctx := c.UserContext()
	realtime.Emit(ctx, h.Feed, proposalsTable, realtime.ChangeUpdate, prop.ID.String(), prop, prop.ProposerID, ex.UserID)
	for i := range rejected {
		rejected[i].Status = models.ProposalRejected
		realtime.Emit(ctx, h.Feed, proposalsTable, realtime.ChangeUpdate, rejected[i].ID.String(), rejected[i], rejected[i].ProposerID, ex.UserID)
	}
	if status == models.ProposalAccepted {
		realtime.Emit(ctx, h.Feed, exchangesTable, realtime.ChangeUpdate, ex.ID.String(), ex)
	}

	return c.JSON(fiber.Map{"success": true, "message": "Proposal " + string(status), "data": prop, "changed": true})
}

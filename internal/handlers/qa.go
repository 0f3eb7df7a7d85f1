package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/db"
	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

// QAHandler serves the ask-teach board: questions, answers and mentors.
type QAHandler struct {
	DB   *gorm.DB
	Feed realtime.Publisher
}

func NewQAHandler(db *gorm.DB, feed realtime.Publisher) *QAHandler {
	return &QAHandler{DB: db, Feed: feed}
}

type QuestionReq struct {
	Title    string     `json:"title" validate:"required,min=5,max=200"`
	Body     string     `json:"body" validate:"required,min=10,max=10000"`
	Category string     `json:"category" validate:"max=60"`
	Tags     []string   `json:"tags" validate:"max=10"`
	MentorID *uuid.UUID `json:"mentor_id"`
}

type QuestionStatusReq struct {
	Status string `json:"status" validate:"required,oneof=open answered closed"`
}

type AnswerReq struct {
	Body string `json:"body" validate:"required,min=2,max=10000"`
}

type MentorReq struct {
	Expertise  []string `json:"expertise" validate:"required,min=1,max=20"`
	Bio        string   `json:"bio" validate:"max=5000"`
	HourlyRate int64    `json:"hourly_rate" validate:"gte=0"`
	Available  *bool    `json:"available"`
}

// ========= Questions =========

func (h *QAHandler) ListQuestions(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.Question{})
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("category = ?", cat)
	}
	if mentor := c.Query("mentor_id"); mentor != "" {
		q = q.Where("mentor_id = ?", mentor)
	}
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := likePattern(s)
		q = q.Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load questions", err)
	}

	var questions []models.Question
	if err := q.Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&questions).Error; err != nil {
		return fail500(c, "failed to load questions", err)
	}
	return okPage(c, questions, p, total)
}

func (h *QAHandler) GetQuestion(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var question models.Question
	if err := h.DB.WithContext(c.UserContext()).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_accepted DESC, created_at ASC")
		}).
		Preload("Answers.Author").Preload("Answers.Author.Profile").
		First(&question, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Question not found")
		}
		return fail500(c, "failed to load question", err)
	}
	return ok(c, "", questionDetail(&question))
}

func (h *QAHandler) CreateQuestion(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req QuestionReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())
	if req.MentorID != nil {
		var n int64
		if err := gdb.Model(&models.MentorProfile{}).Where("user_id = ?", *req.MentorID).Count(&n).Error; err != nil {
			return fail500(c, "failed to check mentor", err)
		}
		if n == 0 {
			return validationFail(c, FieldErrors{"mentor_id": {"is not a mentor"}})
		}
	}

	question := models.Question{
		UserID:   userID,
		Title:    strings.TrimSpace(req.Title),
		Body:     strings.TrimSpace(req.Body),
		Category: strings.TrimSpace(req.Category),
		Tags:     trimList(req.Tags),
		MentorID: req.MentorID,
		Status:   models.QuestionOpen,
	}
	if err := gdb.Create(&question).Error; err != nil {
		return fail500(c, "failed to save question", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "questions", realtime.ChangeInsert, question.ID.String(), question)
	return created(c, "Question posted", question)
}

func (h *QAHandler) loadOwnedQuestion(c *fiber.Ctx) (*models.Question, error) {
	userID, err := getAuth(c)
	if err != nil {
		return nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return nil, err
	}

	var question models.Question
	if err := h.DB.WithContext(c.UserContext()).First(&question, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Question not found")
		}
		return nil, err
	}
	if question.UserID != userID && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return &question, nil
}

func (h *QAHandler) UpdateQuestionStatus(c *fiber.Ctx) error {
	question, err := h.loadOwnedQuestion(c)
	if err != nil {
		return err
	}

	var req QuestionStatusReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	status := models.QuestionStatus(req.Status)
	if question.Status == status {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": question, "changed": false})
	}
	if err := h.DB.WithContext(c.UserContext()).Model(question).Update("status", status).Error; err != nil {
		return fail500(c, "failed to update status", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "questions", realtime.ChangeUpdate, question.ID.String(), question)
	return c.JSON(fiber.Map{"success": true, "message": "Status updated", "data": question, "changed": true})
}

func (h *QAHandler) DeleteQuestion(c *fiber.Ctx) error {
	question, err := h.loadOwnedQuestion(c)
	if err != nil {
		return err
	}

	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", question.ID).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		return tx.Delete(question).Error
	})
	if err != nil {
		return fail500(c, "failed to delete question", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "questions", realtime.ChangeDelete, question.ID.String(), question)
	return c.JSON(fiber.Map{"success": true, "message": "Question deleted"})
}

// ========= Answers =========

func (h *QAHandler) CreateAnswer(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	questionID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req AnswerReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var question models.Question
	if err := gdb.First(&question, "id = ?", questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Question not found")
		}
		return fail500(c, "failed to load question", err)
	}
	if question.Status == models.QuestionClosed {
		return fail(c, fiber.StatusBadRequest, "Question is closed")
	}

	answer := models.Answer{
		QuestionID: question.ID,
		UserID:     userID,
		Body:       strings.TrimSpace(req.Body),
	}
	if err := gdb.Create(&answer).Error; err != nil {
		return fail500(c, "failed to save answer", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "answers", realtime.ChangeInsert, answer.ID.String(), answer)
	return created(c, "Answer posted", answer)
}

// AcceptAnswer marks one answer as accepted and the question as answered.
// Any previously accepted answer on the question is unmarked.
func (h *QAHandler) AcceptAnswer(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	gdb := h.DB.WithContext(c.UserContext())

	var answer models.Answer
	if err := gdb.First(&answer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Answer not found")
		}
		return fail500(c, "failed to load answer", err)
	}
	var question models.Question
	if err := gdb.First(&question, "id = ?", answer.QuestionID).Error; err != nil {
		return fail500(c, "failed to load question", err)
	}
	if question.UserID != userID {
		return fail(c, fiber.StatusForbidden, "Only the asker can accept an answer")
	}
	if answer.IsAccepted {
		return c.JSON(fiber.Map{"success": true, "message": "Answer already accepted", "data": answer, "changed": false})
	}

	var unmarked []models.Answer
	err = gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ? AND is_accepted = ?", question.ID, true).Find(&unmarked).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Answer{}).
			Where("question_id = ? AND is_accepted = ?", question.ID, true).
			Update("is_accepted", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&answer).Update("is_accepted", true).Error; err != nil {
			return err
		}
		return tx.Model(&question).Update("status", models.QuestionAnswered).Error
	})
	if err != nil {
		return fail500(c, "failed to accept answer", err)
	}

	ctx := c.UserContext()
	for i := range unmarked {
		unmarked[i].IsAccepted = false
		realtime.Emit(ctx, h.Feed, "answers", realtime.ChangeUpdate, unmarked[i].ID.String(), unmarked[i])
	}
	realtime.Emit(ctx, h.Feed, "answers", realtime.ChangeUpdate, answer.ID.String(), answer)
	realtime.Emit(ctx, h.Feed, "questions", realtime.ChangeUpdate, question.ID.String(), question)

	return c.JSON(fiber.Map{"success": true, "message": "Answer accepted", "data": answer, "changed": true})
}

func (h *QAHandler) DeleteAnswer(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	gdb := h.DB.WithContext(c.UserContext())

	var answer models.Answer
	if err := gdb.First(&answer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Answer not found")
		}
		return fail500(c, "failed to load answer", err)
	}
	if answer.UserID != userID && !isAdmin(c) {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}

	err = gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&answer).Error; err != nil {
			return err
		}
		if !answer.IsAccepted {
			return nil
		}
		// the question loses its accepted answer
		return tx.Model(&models.Question{}).
			Where("id = ? AND status = ?", answer.QuestionID, models.QuestionAnswered).
			Update("status", models.QuestionOpen).Error
	})
	if err != nil {
		return fail500(c, "failed to delete answer", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "answers", realtime.ChangeDelete, answer.ID.String(), answer)
	return c.JSON(fiber.Map{"success": true, "message": "Answer deleted"})
}

// ========= Mentors =========

func (h *QAHandler) ListMentors(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.MentorProfile{}).Where("available = ?", true)
	if exp := strings.TrimSpace(c.Query("expertise")); exp != "" {
		q = q.Where("LOWER(CAST(expertise AS TEXT)) LIKE ?", likePattern(exp))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load mentors", err)
	}

	var mentors []models.MentorProfile
	if err := q.Preload("User").Preload("User.Profile").
		Order("updated_at DESC").Limit(p.Limit).Offset(p.Offset).
		Find(&mentors).Error; err != nil {
		return fail500(c, "failed to load mentors", err)
	}
	return okPage(c, mentorViews(mentors), p, total)
}

// UpsertMentor creates or updates the caller's mentor profile.
func (h *QAHandler) UpsertMentor(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req MentorReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var mentor models.MentorProfile
	err = gdb.Where("user_id = ?", userID).First(&mentor).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return fail500(c, "failed to load mentor profile", err)
	}

	mentor.UserID = userID
	mentor.Expertise = trimList(req.Expertise)
	mentor.Bio = strings.TrimSpace(req.Bio)
	mentor.HourlyRate = req.HourlyRate
	if req.Available != nil {
		mentor.Available = *req.Available
	} else if isNew {
		mentor.Available = true
	}

	if isNew {
		err = gdb.Create(&mentor).Error
		// a false bool is skipped on insert and the column default applies
		if err == nil && !mentor.Available {
			err = gdb.Model(&mentor).Update("available", false).Error
		}
	} else {
		err = gdb.Save(&mentor).Error
	}
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fail(c, fiber.StatusConflict, "Mentor profile already exists")
		}
		return fail500(c, "failed to save mentor profile", err)
	}

	typ := realtime.ChangeUpdate
	if isNew {
		typ = realtime.ChangeInsert
	}
	realtime.Emit(c.UserContext(), h.Feed, "mentor_profiles", typ, mentor.ID.String(), mentor)
	return ok(c, "Mentor profile saved", mentor)
}

package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
	"github.com/finitixhub/finitix_be/internal/utils"
)

const bookingsTable = "gig_bookings"

type BookingHandler struct {
	DB    *gorm.DB
	Feed  realtime.Publisher
	IDKey string
}

func NewBookingHandler(db *gorm.DB, feed realtime.Publisher, idKey string) *BookingHandler {
	return &BookingHandler{DB: db, Feed: feed, IDKey: idKey}
}

type BookGigReq struct {
	Requirements string `json:"requirements" validate:"required,min=5,max=5000"`
}

type BookingStatusReq struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected completed cancelled"`
}

type BookingResponse struct {
	ID           uuid.UUID `json:"id"`
	GigID        string    `json:"gig_id"`
	GigTitle     string    `json:"gig_title,omitempty"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	Requirements string    `json:"requirements"`
	Price        int64     `json:"price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (h *BookingHandler) toResponse(b *models.GigBooking) BookingResponse {
	enc, _ := utils.EncryptID(b.GigID, h.IDKey)
	out := BookingResponse{
		ID:           b.ID,
		GigID:        enc,
		BuyerID:      b.BuyerID,
		SellerID:     b.SellerID,
		Requirements: b.Requirements,
		Price:        b.Price,
		Status:       string(b.Status),
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if b.Gig != nil {
		out.GigTitle = b.Gig.Title
	}
	return out
}

// emit sends a booking change to its buyer and seller only.
func (h *BookingHandler) emit(c *fiber.Ctx, typ realtime.ChangeType, b *models.GigBooking) {
	realtime.Emit(c.UserContext(), h.Feed, bookingsTable, typ, b.ID.String(), h.toResponse(b), b.BuyerID, b.SellerID)
}

// Book orders an active gig; the price is taken from the gig.
func (h *BookingHandler) Book(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	gigID, err := utils.DecryptID(c.Params("id"), h.IDKey)
	if err != nil || gigID == 0 {
		return fail(c, fiber.StatusBadRequest, "invalid gig id")
	}

	var req BookGigReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var gig models.Gig
	if err := gdb.First(&gig, "id = ?", gigID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Gig not found")
		}
		return fail500(c, "failed to load gig", err)
	}
	if gig.UserID == userID {
		return fail(c, fiber.StatusBadRequest, "You cannot book your own gig")
	}
	if gig.Status != models.GigActive {
		return fail(c, fiber.StatusBadRequest, "This gig is not taking bookings")
	}

	booking := models.GigBooking{
		GigID:        gig.ID,
		BuyerID:      userID,
		SellerID:     gig.UserID,
		Requirements: strings.TrimSpace(req.Requirements),
		Price:        gig.Price,
		Status:       models.BookingPending,
	}
	if err := gdb.Create(&booking).Error; err != nil {
		return fail500(c, "failed to book gig", err)
	}
	booking.Gig = &gig

	h.emit(c, realtime.ChangeInsert, &booking)
	return created(c, "Gig booked", h.toResponse(&booking))
}

// List returns the caller's bookings as buyer (default) or seller.
func (h *BookingHandler) List(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.GigBooking{})
	switch c.Query("role", "buyer") {
	case "seller":
		q = q.Where("seller_id = ?", userID)
	case "buyer":
		q = q.Where("buyer_id = ?", userID)
	default:
		return fail(c, fiber.StatusBadRequest, "role must be buyer or seller")
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load bookings", err)
	}

	var bookings []models.GigBooking
	if err := q.Preload("Gig").Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&bookings).Error; err != nil {
		return fail500(c, "failed to load bookings", err)
	}

	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, h.toResponse(&bookings[i]))
	}
	return okPage(c, out, p, total)
}

// bookingTransitions lists which side may move a booking into each status,
// and from which statuses.
var bookingTransitions = map[models.BookingStatus]struct {
	seller bool
	from   []models.BookingStatus
}{
	models.BookingAccepted:  {seller: true, from: []models.BookingStatus{models.BookingPending}},
	models.BookingRejected:  {seller: true, from: []models.BookingStatus{models.BookingPending}},
	models.BookingCompleted: {seller: true, from: []models.BookingStatus{models.BookingAccepted}},
	models.BookingCancelled: {seller: false, from: []models.BookingStatus{models.BookingPending, models.BookingAccepted}},
}

// UpdateStatus moves a booking along: the seller accepts, rejects or
// completes it, the buyer cancels it. Repeating the current status is a no-op.
func (h *BookingHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req BookingStatusReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var booking models.GigBooking
	if err := gdb.Preload("Gig").First(&booking, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Booking not found")
		}
		return fail500(c, "failed to load booking", err)
	}

	status := models.BookingStatus(req.Status)
	rule := bookingTransitions[status]
	actor := booking.BuyerID
	if rule.seller {
		actor = booking.SellerID
	}
	if actor != userID {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}

	if booking.Status == status {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": h.toResponse(&booking), "changed": false})
	}

	allowed := false
	for _, from := range rule.from {
		if booking.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return fail(c, fiber.StatusBadRequest, "Cannot change a "+string(booking.Status)+" booking to "+string(status))
	}

	res := gdb.Model(&models.GigBooking{}).
		Where("id = ? AND status = ?", booking.ID, booking.Status).
		Update("status", status)
	if res.Error != nil {
		return fail500(c, "failed to update booking", res.Error)
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusConflict, "Booking was changed by someone else, please reload")
	}
	booking.Status = status
	booking.UpdatedAt = time.Now()

	h.emit(c, realtime.ChangeUpdate, &booking)
	return c.JSON(fiber.Map{"success": true, "message": "Status updated", "data": h.toResponse(&booking), "changed": true})
}

package handlers

import (
	"github.com/google/uuid"

	"github.com/finitixhub/finitix_be/internal/models"
)

// PublicUser is what other members may see of an account. Email, role and
// provider stay private.
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Headline  string    `json:"headline"`
}

func publicUser(u *models.User) *PublicUser {
	if u == nil {
		return nil
	}
	out := &PublicUser{ID: u.ID}
	if u.Profile != nil {
		out.Username = u.Profile.Username
		out.FullName = u.Profile.FullName
		out.AvatarURL = u.Profile.AvatarURL
		out.Headline = u.Profile.Headline
	}
	return out
}

// JobDetail shadows the preloaded owner with its public view.
type JobDetail struct {
	models.JobPosting
	Owner *PublicUser `json:"owner,omitempty"`
}

type AnswerView struct {
	models.Answer
	Author *PublicUser `json:"author,omitempty"`
}

type QuestionDetail struct {
	models.Question
	Answers []AnswerView `json:"answers"`
}

type MentorView struct {
	models.MentorProfile
	User *PublicUser `json:"user,omitempty"`
}

func questionDetail(q *models.Question) QuestionDetail {
	answers := make([]AnswerView, 0, len(q.Answers))
	for i := range q.Answers {
		a := q.Answers[i]
		answers = append(answers, AnswerView{Answer: a, Author: publicUser(a.Author)})
	}
	return QuestionDetail{Question: *q, Answers: answers}
}

func mentorViews(in []models.MentorProfile) []MentorView {
	out := make([]MentorView, 0, len(in))
	for i := range in {
		out = append(out, MentorView{MentorProfile: in[i], User: publicUser(in[i].User)})
	}
	return out
}

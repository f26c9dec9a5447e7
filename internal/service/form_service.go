package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/config"
	"github.com/formforge/formforge-backend/internal/model"
	"github.com/formforge/formforge-backend/internal/repository"
	"github.com/formforge/formforge-backend/internal/response"
)

// ErrInvalidQuestion is returned when a question definition in a bulk
// replace is malformed.
var ErrInvalidQuestion = errors.New("invalid question definition")

// optionOrderTTL bounds how long a session's shuffled option order is kept.
// Longer than any reasonable attempt; a cache miss just reshuffles.
const optionOrderTTL = 24 * time.Hour

// FormService handles form and question management plus the
// respondent-facing form view.
type FormService struct {
	formRepo     *repository.FormRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewFormService creates a new FormService.
func NewFormService(
	formRepo *repository.FormRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *FormService {
	return &FormService{
		formRepo:     formRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "form_service").Logger(),
	}
}

// Snapshot loads a form together with its current question set. The
// session engine grades against whatever this returns at finalization
// time, so mid-attempt edits are picked up automatically.
func (s *FormService) Snapshot(ctx context.Context, formID uuid.UUID) (*model.FormSnapshot, error) {
	form, err := s.formRepo.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return &model.FormSnapshot{Form: form, Questions: questions}, nil
}

// Create inserts a new draft form for the given owner.
func (s *FormService) Create(ctx context.Context, ownerID int, req *model.CreateFormRequest) (*model.Form, error) {
	form := &model.Form{
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		Status:      model.FormStatusDraft,
	}
	if req.Settings != nil {
		form.Settings = *req.Settings
	}
	if err := s.formRepo.Create(ctx, form); err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}
	return form, nil
}

// GetOwned retrieves a form and verifies ownership.
func (s *FormService) GetOwned(ctx context.Context, formID uuid.UUID, ownerID int) (*model.Form, error) {
	form, err := s.formRepo.GetByID(ctx, formID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get form: %w", err)
	}
	if form.OwnerID != ownerID {
		return nil, ErrNotFormOwner
	}
	return form, nil
}

// List retrieves a creator's forms, paginated.
func (s *FormService) List(ctx context.Context, ownerID, page, perPage int) ([]model.Form, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	forms, total, err := s.formRepo.ListByOwnerPaginated(ctx, ownerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list forms: %w", err)
	}
	if forms == nil {
		forms = []model.Form{}
	}

	return forms, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// Update modifies a draft form's title, description, and settings.
func (s *FormService) Update(ctx context.Context, formID uuid.UUID, ownerID int, req *model.UpdateFormRequest) (*model.Form, error) {
	form, err := s.GetOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if form.Status != model.FormStatusDraft {
		return nil, ErrFormNotDraft
	}

	if req.Title != "" {
		form.Title = req.Title
	}
	if req.Description != nil {
		form.Description = *req.Description
	}
	if req.Settings != nil {
		form.Settings = *req.Settings
	}

	if err := s.formRepo.Update(ctx, form); err != nil {
		return nil, fmt.Errorf("update form: %w", err)
	}
	return form, nil
}

// Publish moves a draft form to open. A form with no questions cannot be
// published.
func (s *FormService) Publish(ctx context.Context, formID uuid.UUID, ownerID int) (*model.Form, error) {
	form, err := s.GetOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if form.Status != model.FormStatusDraft {
		return nil, ErrFormNotDraft
	}

	questions, err := s.questionRepo.ListByForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.formRepo.UpdateStatus(ctx, formID, model.FormStatusOpen); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	form.Status = model.FormStatusOpen
	return form, nil
}

// Close stops a form from accepting new sessions. Sessions already
// in_progress keep running until they submit or expire.
func (s *FormService) Close(ctx context.Context, formID uuid.UUID, ownerID int) (*model.Form, error) {
	form, err := s.GetOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if form.Status != model.FormStatusOpen {
		return nil, ErrFormNotAcceptingResponses
	}

	if err := s.formRepo.UpdateStatus(ctx, formID, model.FormStatusClosed); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	form.Status = model.FormStatusClosed
	return form, nil
}

// Delete removes a form and everything under it.
func (s *FormService) Delete(ctx context.Context, formID uuid.UUID, ownerID int) error {
	if _, err := s.GetOwned(ctx, formID, ownerID); err != nil {
		return err
	}
	if err := s.formRepo.Delete(ctx, formID); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return nil
}

// ReplaceQuestions swaps a form's full question set. Allowed while the form
// is draft or open; grading tolerates edits made while sessions are live.
func (s *FormService) ReplaceQuestions(ctx context.Context, formID uuid.UUID, ownerID int, req *model.ReplaceQuestionsRequest) ([]model.Question, error) {
	form, err := s.GetOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if form.Status == model.FormStatusClosed {
		return nil, ErrFormNotAcceptingResponses
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for i, in := range req.Questions {
		qt := model.QuestionType(in.Type)
		if !qt.Valid() {
			return nil, fmt.Errorf("question %d: unknown type %q: %w", i, in.Type, ErrInvalidQuestion)
		}
		if qt.HasOptions() && len(in.Options) == 0 {
			return nil, fmt.Errorf("question %d: type %q requires options: %w", i, in.Type, ErrInvalidQuestion)
		}

		options := make([]model.Option, len(in.Options))
		copy(options, in.Options)
		seen := make(map[string]bool, len(options))
		for j := range options {
			if options[j].ID == "" {
				options[j].ID = uuid.NewString()
			}
			if seen[options[j].ID] {
				return nil, fmt.Errorf("question %d: duplicate option id %q: %w", i, options[j].ID, ErrInvalidQuestion)
			}
			seen[options[j].ID] = true
		}

		questions = append(questions, model.Question{
			Title:         in.Title,
			Type:          qt,
			Required:      in.Required,
			Points:        in.Points,
			CorrectAnswer: in.CorrectAnswer,
			Options:       options,
		})
	}

	if err := s.questionRepo.ReplaceForForm(ctx, formID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}
	return questions, nil
}

// PublicView builds the respondent-facing form payload for one session.
// Grading material is stripped; when shuffling is enabled, the option order
// is fixed per session so reloads see the same layout.
func (s *FormService) PublicView(ctx context.Context, snapshot *model.FormSnapshot, sessionID uuid.UUID) *model.PublicForm {
	form := snapshot.Form
	public := &model.PublicForm{
		ID:          form.ID,
		Title:       form.Title,
		Description: form.Description,
		Settings: model.PublicFormSettings{
			TimeLimitMinutes: form.Settings.TimeLimitMinutes,
			AntiCheat:        form.Settings.AntiCheat,
		},
		Questions: make([]model.PublicQuestion, 0, len(snapshot.Questions)),
	}

	var order map[string][]string
	if form.Settings.ShuffleOptions {
		order = s.sessionOptionOrder(ctx, sessionID, snapshot.Questions)
	}

	for i := range snapshot.Questions {
		q := &snapshot.Questions[i]
		pq := model.PublicQuestion{
			ID:       q.ID,
			Title:    q.Title,
			Type:     q.Type,
			Required: q.Required,
			Points:   q.Points,
			Position: q.Position,
		}
		for _, opt := range orderedOptions(q, order[q.ID.String()]) {
			pq.Options = append(pq.Options, model.PublicOption{ID: opt.ID, Content: opt.Content})
		}
		public.Questions = append(public.Questions, pq)
	}
	return public
}

// sessionOptionOrder returns the session's pinned option order, generating
// and caching it on first use. On any cache failure the natural order is
// used; shuffling is presentation only.
func (s *FormService) sessionOptionOrder(ctx context.Context, sessionID uuid.UUID, questions []model.Question) map[string][]string {
	key := config.CacheKey.SessionOptionOrderKey(sessionID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var order map[string][]string
		if jsonErr := json.Unmarshal([]byte(val), &order); jsonErr == nil {
			return order
		}
		s.log.Warn().Str("session_id", sessionID.String()).Msg("corrupt option order in cache, reshuffling")
	} else if err != redis.Nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to read option order from cache")
		return nil
	}

	order := make(map[string][]string, len(questions))
	for i := range questions {
		q := &questions[i]
		if !q.Type.HasOptions() || len(q.Options) == 0 {
			continue
		}
		ids := make([]string, len(q.Options))
		for j, opt := range q.Options {
			ids[j] = opt.ID
		}
		rand.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
		order[q.ID.String()] = ids
	}

	payload, err := json.Marshal(order)
	if err == nil {
		if err := s.rdb.Set(ctx, key, payload, optionOrderTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to cache option order")
		}
	}
	return order
}

// orderedOptions applies a pinned id order to a question's options. Options
// added after the order was pinned are appended in natural order; ids that
// no longer resolve are skipped.
func orderedOptions(q *model.Question, order []string) []model.Option {
	if len(order) == 0 {
		return q.Options
	}

	byID := make(map[string]*model.Option, len(q.Options))
	for i := range q.Options {
		byID[q.Options[i].ID] = &q.Options[i]
	}

	out := make([]model.Option, 0, len(q.Options))
	used := make(map[string]bool, len(order))
	for _, id := range order {
		if opt, ok := byID[id]; ok {
			out = append(out, *opt)
			used[id] = true
		}
	}
	for i := range q.Options {
		if !used[q.Options[i].ID] {
			out = append(out, q.Options[i])
		}
	}
	return out
}

// Package question implements the member-facing operations on a family's
// daily questions and answers.
package question

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/gateway"
	"github.com/dukerupert/dailyquestion/internal/metrics"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/progress"
	"github.com/dukerupert/dailyquestion/internal/store"
	"github.com/dukerupert/dailyquestion/internal/websocket"
)

// PageSize is the number of questions per history page.
const PageSize = 20

// History orders
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Item is one member's participation in a question.
type Item struct {
	AnswerID   *int64  `json:"answerId"`
	MemberID   int64   `json:"memberId"`
	Nickname   string  `json:"nickname"`
	ZodiacSign string  `json:"zodiacSign"`
	Color      string  `json:"color"`
	Content    *string `json:"content"`
	Answered   bool    `json:"answered"`
}

// View is a question together with every member's participation.
type View struct {
	QuestionID int64  `json:"questionId"`
	Content    string `json:"questionContent"`
	Items      []Item `json:"items"`
}

// Summary is a question as listed in the history.
type Summary struct {
	QuestionID int64  `json:"questionId"`
	Content    string `json:"questionContent"`
}

// Page is one page of a family's question history.
type Page struct {
	PageNo  int       `json:"pageNo"`
	Items   []Summary `json:"items"`
	HasNext bool      `json:"hasNext"`
	IsLast  bool      `json:"isLast"`
}

// Broadcaster pushes live updates to a family's connected members.
type Broadcaster interface {
	BroadcastFamily(familyID int64, msg websocket.Message)
}

type Service struct {
	tracker     *progress.Tracker
	questions   *store.QuestionStore
	answers     *store.AnswerStore
	roster      gateway.Roster
	notifier    gateway.Notifier
	broadcaster Broadcaster
	now         func() time.Time
}

func NewService(tracker *progress.Tracker, questions *store.QuestionStore, answers *store.AnswerStore, roster gateway.Roster, notifier gateway.Notifier, broadcaster Broadcaster) *Service {
	return &Service{
		tracker:     tracker,
		questions:   questions,
		answers:     answers,
		roster:      roster,
		notifier:    notifier,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// WithClock replaces the service's time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// current resolves the member's family and its current question.
func (s *Service) current(ctx context.Context, memberID int64) (*progress.Current, error) {
	familyID, err := s.roster.FamilyOf(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.tracker.CurrentQuestion(ctx, familyID)
}

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Wrap(apperr.ErrInvalidInput, errors.New("answer content is empty"))
	}
	return content, nil
}

// CreateAnswer records the member's answer to the family's current question.
func (s *Service) CreateAnswer(ctx context.Context, memberID int64, content string) (*model.Answer, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	cur, err := s.current(ctx, memberID)
	if err != nil {
		return nil, err
	}

	exists, err := s.answers.Exists(ctx, cur.Ref(), memberID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrDuplicateAnswer
	}

	a, err := s.answers.Create(ctx, cur.Ref(), memberID, content, s.now())
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.ErrDuplicateAnswer
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordAnswerWrite("create")
	s.broadcast(cur.Progress.FamilyID, websocket.AnswerChanged("created", a.ID, memberID, a.SequenceID))
	return a, nil
}

// UpdateAnswer replaces the content of the member's answer to the current question.
func (s *Service) UpdateAnswer(ctx context.Context, memberID int64, content string) (*model.Answer, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	cur, err := s.current(ctx, memberID)
	if err != nil {
		return nil, err
	}

	a, err := s.answers.Update(ctx, cur.Ref(), memberID, content, s.now())
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.ErrAnswerNotFound
	}

	metrics.RecordAnswerWrite("update")
	s.broadcast(cur.Progress.FamilyID, websocket.AnswerChanged("updated", a.ID, memberID, a.SequenceID))
	return a, nil
}

// GetQuestion returns the current question, or the one at seq when given,
// with one item per family member. The requesting member comes first and
// the rest keep roster order. seq may not be ahead of the family.
func (s *Service) GetQuestion(ctx context.Context, memberID int64, seq *int64) (*View, error) {
	cur, err := s.current(ctx, memberID)
	if err != nil {
		return nil, err
	}

	q := cur.Question
	if seq != nil && *seq != cur.Question.SequenceID {
		if *seq < progress.FirstSequence || *seq > cur.Progress.SequenceID {
			return nil, apperr.ErrQuestionNotFound
		}
		found, err := s.questions.Get(ctx, *seq)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, apperr.ErrQuestionNotFound
		}
		q = *found
	}

	members, err := s.roster.FamilyMembers(ctx, cur.Progress.FamilyID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByRef(ctx, model.SequenceRef{FamilyID: cur.Progress.FamilyID, SequenceID: q.SequenceID})
	if err != nil {
		return nil, err
	}
	byMember := make(map[int64]model.Answer, len(answers))
	for _, a := range answers {
		byMember[a.MemberID] = a
	}

	items := make([]Item, 0, len(members))
	for _, m := range members {
		item := Item{
			MemberID:   m.ID,
			Nickname:   m.Nickname,
			ZodiacSign: m.ZodiacSign,
			Color:      m.Color,
		}
		if a, ok := byMember[m.ID]; ok {
			item.AnswerID = &a.ID
			item.Content = &a.Content
			item.Answered = true
		}
		if m.ID == memberID {
			items = append([]Item{item}, items...)
			continue
		}
		items = append(items, item)
	}

	return &View{QuestionID: q.SequenceID, Content: q.Content, Items: items}, nil
}

// ListQuestions pages through every question the family has reached.
func (s *Service) ListQuestions(ctx context.Context, memberID int64, pageNo int, order string) (*Page, error) {
	var desc bool
	switch order {
	case OrderAsc:
	case OrderDesc:
		desc = true
	default:
		return nil, apperr.ErrInvalidQueryParam
	}
	if pageNo < 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, fmt.Errorf("page %d is negative", pageNo))
	}
	// The row offset must stay representable.
	if pageNo > math.MaxInt/PageSize-1 {
		return nil, apperr.Wrap(apperr.ErrInvalidQueryParam, fmt.Errorf("page %d is out of range", pageNo))
	}

	cur, err := s.current(ctx, memberID)
	if err != nil {
		return nil, err
	}

	qs, err := s.questions.ListUpTo(ctx, cur.Progress.SequenceID, desc, PageSize+1, pageNo*PageSize)
	if err != nil {
		return nil, err
	}
	hasNext := len(qs) > PageSize
	if hasNext {
		qs = qs[:PageSize]
	}

	items := make([]Summary, 0, len(qs))
	for _, q := range qs {
		items = append(items, Summary{QuestionID: q.SequenceID, Content: q.Content})
	}
	return &Page{PageNo: pageNo, Items: items, HasNext: hasNext, IsLast: !hasNext}, nil
}

// Nudge sends one KNOCK notification from sender to another member of the
// same family, pointing at question seq.
func (s *Service) Nudge(ctx context.Context, senderID, receiverID, seq int64) error {
	familyID, err := s.roster.FamilyOf(ctx, senderID)
	if err != nil {
		return err
	}
	members, err := s.roster.FamilyMembers(ctx, familyID)
	if err != nil {
		return err
	}

	var sender, receiver *model.FamilyMember
	for i := range members {
		switch members[i].ID {
		case senderID:
			sender = &members[i]
		case receiverID:
			receiver = &members[i]
		}
	}
	if sender == nil || receiver == nil {
		return apperr.ErrMemberNotFound
	}

	return s.notifier.Dispatch(ctx, model.Notification{
		Type:          model.NotifTypeKnock,
		ReceiverIDs:   []int64{receiver.ID},
		SenderID:      &senderID,
		DestinationID: strconv.FormatInt(seq, 10),
		Title:         fmt.Sprintf("%s knocked on your door", sender.Nickname),
		Message:       "Answer today's question and see what the rest of your family said!",
	})
}

func (s *Service) broadcast(familyID int64, msg websocket.Message) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastFamily(familyID, msg)
	}
}

package timeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/models"
)

// SubmitSubReply appends the user's reply under parentReplyID and asks the
// parent's author to answer it. The returned reply is the updated parent.
func (s *Store) SubmitSubReply(ctx context.Context, itemID, parentReplyID, text string) (*models.Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	item, i, err := s.itemLocked(itemID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	parent, ok := item.ReplySet().Find(parentReplyID)
	if !ok {
		s.mu.Unlock()
		return nil, ErrReplyNotFound
	}
	guard := "item/" + itemID + "/reply/" + parentReplyID
	if _, busy := s.inflight[guard]; busy || parent.IsGeneratingChildren {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.ops.Done()

	decision := s.quota.CheckAndManage(ctx)
	if !decision.CanProceed {
		msg := quotaText(decision.Message)
		updated := s.updateReplyLocked(i, item, parentReplyID, func(r *models.Reply) *models.Reply {
			cp := r.Clone()
			cp.IsGeneratingChildren = false
			cp.ErrorGeneratingChildren = msg
			cp.ShowReplyInput = false
			return cp
		})
		s.emitLocked(models.EventTypeQuotaDenied, models.EntityTypeReply, parentReplyID, models.TimelinePayload{
			ItemID:  itemID,
			ReplyID: parentReplyID,
			Class:   models.ErrorClassQuotaDenied,
			Message: msg,
		})
		queued := s.commitLocked(ctx)
		s.mu.Unlock()
		s.publish(ctx, queued)
		return updated.Clone(), nil
	}

	s.quota.Record(ctx)
	_ = s.acquireLocked(guard)

	var recent []string
	if !parent.User.IsMainUser() {
		recent = s.recentTextsLocked()
	}
	userReply := models.NewReply(s.newID(), s.mainUser, text, s.nowMillis())
	s.updateReplyLocked(i, item, parentReplyID, func(r *models.Reply) *models.Reply {
		cp := r.WithChild(userReply)
		cp.IsGeneratingChildren = true
		cp.ErrorGeneratingChildren = ""
		cp.ShowReplyInput = false
		return cp
	})
	s.emitLocked(models.EventTypeReplyChildAdded, models.EntityTypeReply, userReply.ID, models.TimelinePayload{
		ItemID:  itemID,
		ReplyID: parentReplyID,
	})
	speaker := clonePersona(parent.User)
	userName := s.mainUser.Name
	queued := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(ctx, queued)

	return s.generateChild(ctx, guard, itemID, parentReplyID, childRequest{
		text:     text,
		speaker:  speaker,
		recent:   recent,
		userName: userName,
	})
}

// SubmitDirectReplyToQuoteRetweet adds the user's reply at the top level
// of a quote-repost and asks the quote's author to answer it. The returned
// reply is the user's reply with the answer, if any, as its child.
func (s *Store) SubmitDirectReplyToQuoteRetweet(ctx context.Context, quoteID, text string) (*models.Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	qr, i, err := s.quoteLocked(quoteID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	guard := "quote/" + quoteID + "/direct"
	if _, busy := s.inflight[guard]; busy {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.ops.Done()

	decision := s.quota.CheckAndManage(ctx)
	if !decision.CanProceed {
		msg := quotaText(decision.Message)
		next := qr.Clone()
		next.ShowDirectReplyInput = false
		s.replaceLocked(i, next)
		s.emitLocked(models.EventTypeQuotaDenied, models.EntityTypeQuote, quoteID, models.TimelinePayload{
			ItemID:  quoteID,
			Class:   models.ErrorClassQuotaDenied,
			Message: msg,
		})
		queued := s.commitLocked(ctx)
		s.mu.Unlock()
		s.publish(ctx, queued)
		return nil, fmt.Errorf("%w: %s", ErrQuotaDenied, msg)
	}

	s.quota.Record(ctx)
	_ = s.acquireLocked(guard)

	recent := s.recentTextsLocked()
	userReply := models.NewReply(s.newID(), s.mainUser, text, s.nowMillis())
	userReply.IsGeneratingChildren = true
	next := qr.Clone()
	next.Replies = next.Replies.Append(userReply).RevealAll()
	next.ShowDirectReplyInput = false
	s.replaceLocked(i, next)
	s.emitLocked(models.EventTypeReplyChildAdded, models.EntityTypeReply, userReply.ID, models.TimelinePayload{
		ItemID: quoteID,
	})
	speaker := clonePersona(qr.User)
	userName := s.mainUser.Name
	queued := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(ctx, queued)

	return s.generateChild(ctx, guard, quoteID, userReply.ID, childRequest{
		text:     text,
		speaker:  speaker,
		recent:   recent,
		userName: userName,
	})
}

type childRequest struct {
	text     string
	speaker  models.UserProfile
	recent   []string
	userName string
}

// generateChild asks req.speaker to answer and settles the parent reply.
// The user's optimistic reply stays in place whatever the outcome.
func (s *Store) generateChild(ctx context.Context, guard, itemID, parentID string, req childRequest) (*models.Reply, error) {
	log := logging.WithItem(s.logger, itemID)
	speaker := req.speaker

	callCtx, cancel := s.callContext(ctx)
	replies, genErr := s.gen.GenerateReplies(callCtx, llm.ReplyRequest{
		PostText:          req.text,
		ReplyingAs:        &speaker,
		PastUserPostTexts: req.recent,
		MainUserName:      req.userName,
	})
	cancel()

	var result *models.Reply
	err := s.update(ctx, func() error {
		s.releaseLocked(guard)
		item, i, err := s.itemLocked(itemID)
		if err != nil {
			return errUnchanged
		}
		if _, ok := item.ReplySet().Find(parentID); !ok {
			return errUnchanged
		}

		class := classify(genErr, len(replies))
		result = s.updateReplyLocked(i, item, parentID, func(r *models.Reply) *models.Reply {
			var cp *models.Reply
			if class == "" {
				answer := models.NewReply(s.newID(), clonePersona(req.speaker), replies[0].ReplyText, s.nowMillis()+1)
				cp = r.WithChild(answer)
			} else {
				cp = r.Clone()
				cp.ErrorGeneratingChildren = childMessages.text(class)
			}
			cp.IsGeneratingChildren = false
			return cp
		})
		if class != "" {
			s.setBannerLocked(class)
			logOutcome(log, class, genErr)
		}
		s.emitLocked(models.EventTypeReplyUpdated, models.EntityTypeReply, parentID, models.TimelinePayload{
			ItemID:  itemID,
			ReplyID: parentID,
			Count:   len(result.Children),
			Class:   class,
			Message: result.ErrorGeneratingChildren,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrReplyNotFound
	}
	return result.Clone(), nil
}

// updateReplyLocked replaces one reply of the item at index i and returns
// the new node.
func (s *Store) updateReplyLocked(i int, item models.TimelineItem, replyID string, fn func(*models.Reply) *models.Reply) *models.Reply {
	var updated *models.Reply
	replies, ok := item.ReplySet().Update(replyID, func(r *models.Reply) *models.Reply {
		updated = fn(r)
		return updated
	})
	if !ok {
		return nil
	}
	s.replaceLocked(i, item.WithReplySet(replies))
	return updated
}

// ToggleReplyInput flips the reply box under a reply.
func (s *Store) ToggleReplyInput(ctx context.Context, itemID, replyID string) (*models.Reply, error) {
	var updated *models.Reply
	err := s.update(ctx, func() error {
		item, i, err := s.itemLocked(itemID)
		if err != nil {
			return err
		}
		updated = s.updateReplyLocked(i, item, replyID, func(r *models.Reply) *models.Reply {
			cp := r.Clone()
			cp.ShowReplyInput = !cp.ShowReplyInput
			return cp
		})
		if updated == nil {
			return ErrReplyNotFound
		}
		s.emitLocked(models.EventTypeReplyUpdated, models.EntityTypeReply, replyID, models.TimelinePayload{
			ItemID:  itemID,
			ReplyID: replyID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// ToggleDirectReplyInput flips the reply box of a quote-repost.
func (s *Store) ToggleDirectReplyInput(ctx context.Context, quoteID string) (*models.QuoteRetweet, error) {
	var updated *models.QuoteRetweet
	err := s.update(ctx, func() error {
		qr, i, err := s.quoteLocked(quoteID)
		if err != nil {
			return err
		}
		updated = qr.Clone()
		updated.ShowDirectReplyInput = !updated.ShowDirectReplyInput
		s.replaceLocked(i, updated)
		s.emitLocked(models.EventTypeQuoteUpdated, models.EntityTypeQuote, quoteID, models.TimelinePayload{ItemID: quoteID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// clonePersona copies a profile so the continuing speaker shares nothing
// with the original node.
func clonePersona(u models.UserProfile) models.UserProfile {
	u.PastUserPosts = slices.Clone(u.PastUserPosts)
	return u
}

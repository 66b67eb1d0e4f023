package timeline

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/models"
)

// CreatePost adds a post at the top of the timeline and waits for its
// first reply round to settle. A quota denial produces a post carrying the
// denial text and no quote-repost attempt.
func (s *Store) CreatePost(ctx context.Context, text string) (*models.Post, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.ops.Done()

	recent := s.recentTextsLocked()
	user := s.mainUser
	post := models.NewPost(s.newID(), user, text, s.nowMillis())
	s.banner = ""

	decision := s.quota.CheckAndManage(ctx)
	if !decision.CanProceed {
		post.ErrorGeneratingReplies = quotaText(decision.Message)
		s.prependLocked(post)
		s.pager.Reset()
		s.emitLocked(models.EventTypePostCreated, models.EntityTypePost, post.ID, models.TimelinePayload{ItemID: post.ID})
		s.emitLocked(models.EventTypeQuotaDenied, models.EntityTypePost, post.ID, models.TimelinePayload{
			ItemID:  post.ID,
			Class:   models.ErrorClassQuotaDenied,
			Message: post.ErrorGeneratingReplies,
		})
		queued := s.commitLocked(ctx)
		s.mu.Unlock()
		s.publish(ctx, queued)
		s.logger.Info().Str("post_id", post.ID).Msg("post created without replies: quota denied")
		return post.Clone(), nil
	}

	s.quota.Record(ctx)
	post.IsGeneratingReplies = true
	s.prependLocked(post)
	s.pager.Reset()
	s.emitLocked(models.EventTypePostCreated, models.EntityTypePost, post.ID, models.TimelinePayload{ItemID: post.ID})
	queued := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(ctx, queued)

	log := logging.WithItem(s.logger, post.ID)
	log.Debug().Int("context_posts", len(recent)).Msg("generating replies")

	callCtx, cancel := s.callContext(ctx)
	replies, genErr := s.gen.GenerateReplies(callCtx, llm.ReplyRequest{
		PostText:          text,
		PastUserPostTexts: recent,
		MainUserName:      user.Name,
	})
	cancel()

	var settled *models.Post
	err := s.update(ctx, func() error {
		current, i, err := s.postLocked(post.ID)
		if err != nil {
			log.Warn().Msg("post vanished before replies arrived")
			return errUnchanged
		}
		next := current.Clone()
		next.IsGeneratingReplies = false

		class := classify(genErr, len(replies))
		if class == "" {
			minted := s.mintReplies(post.ID, 0, next.Timestamp, replies)
			next.Replies = models.NewReplySet(minted, min(len(minted), s.cfg.RevealCap))
			next.CanLoadMore = len(minted) > 0
		} else {
			next.ErrorGeneratingReplies = initialMessages.text(class)
			next.CanLoadMore = false
			s.setBannerLocked(class)
			logOutcome(log, class, genErr)
		}
		s.replaceLocked(i, next)
		s.emitLocked(models.EventTypePostSettled, models.EntityTypePost, post.ID, models.TimelinePayload{
			ItemID:   post.ID,
			Count:    next.Replies.Len(),
			Revealed: next.Replies.Revealed(),
			Class:    class,
			Message:  next.ErrorGeneratingReplies,
		})
		if next.Replies.Backlog() > 0 {
			s.reveals.Ensure(post.ID)
		}
		s.scheduleQuoteLocked(next)
		settled = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		return post.Clone(), nil
	}
	return settled, nil
}

// mintReplies turns generated replies into reply nodes. Timestamps are
// base+offset+index+1 so arrival order is strict within a batch.
func (s *Store) mintReplies(itemID string, offset int, base int64, generated []llm.GeneratedReply) []*models.Reply {
	out := make([]*models.Reply, 0, len(generated))
	for i, g := range generated {
		index := offset + i
		user := s.minter.ReplyPersona(itemID, index, g.Username, g.ReplyText)
		out = append(out, models.NewReply(s.newID(), user, g.ReplyText, base+int64(index)+1))
	}
	return out
}

// LoadMoreReplies asks for another batch of replies and shows all of them
// at once.
func (s *Store) LoadMoreReplies(ctx context.Context, postID string) (*models.Post, error) {
	s.mu.Lock()
	post, i, err := s.postLocked(postID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if post.IsGeneratingReplies {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	guard := "post/" + postID + "/more"
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
		next := post.Clone()
		next.IsGeneratingMoreReplies = false
		next.ErrorGeneratingMoreReplies = quotaText(decision.Message)
		next.CanLoadMore = next.Replies.Len() > 0
		s.replaceLocked(i, next)
		s.emitLocked(models.EventTypeQuotaDenied, models.EntityTypePost, postID, models.TimelinePayload{
			ItemID:  postID,
			Class:   models.ErrorClassQuotaDenied,
			Message: next.ErrorGeneratingMoreReplies,
		})
		queued := s.commitLocked(ctx)
		s.mu.Unlock()
		s.publish(ctx, queued)
		return next.Clone(), nil
	}

	s.quota.Record(ctx)
	_ = s.acquireLocked(guard)
	next := post.Clone()
	next.IsGeneratingMoreReplies = true
	next.ErrorGeneratingMoreReplies = ""
	s.replaceLocked(i, next)
	recent := s.recentTextsLocked()
	user := s.mainUser
	queued := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(ctx, queued)

	log := logging.WithItem(s.logger, postID)
	callCtx, cancel := s.callContext(ctx)
	replies, genErr := s.gen.GenerateReplies(callCtx, llm.ReplyRequest{
		PostText:          post.Text,
		PastUserPostTexts: recent,
		MainUserName:      user.Name,
	})
	cancel()

	var result *models.Post
	err = s.update(ctx, func() error {
		s.releaseLocked(guard)
		current, i, err := s.postLocked(postID)
		if err != nil {
			return errUnchanged
		}
		next := current.Clone()
		next.IsGeneratingMoreReplies = false

		class := classify(genErr, len(replies))
		switch class {
		case "":
			base := next.Replies.Len()
			minted := s.mintReplies(postID, base, s.nowMillis(), replies)
			next.Replies = next.Replies.Append(minted...).RevealAll()
			next.CanLoadMore = true
		case models.ErrorClassTransportFailure:
			next.ErrorGeneratingMoreReplies = moreMessages.text(class)
			logOutcome(log, class, genErr)
		default:
			next.ErrorGeneratingMoreReplies = moreMessages.text(class)
			next.CanLoadMore = false
			s.setBannerLocked(class)
			logOutcome(log, class, genErr)
		}
		s.replaceLocked(i, next)
		s.emitLocked(models.EventTypePostMoreLoaded, models.EntityTypePost, postID, models.TimelinePayload{
			ItemID:   postID,
			Count:    next.Replies.Len(),
			Revealed: next.Replies.Revealed(),
			Class:    class,
			Message:  next.ErrorGeneratingMoreReplies,
		})
		// A reveal step that fired mid-round ended the chain.
		if next.Settled() && next.Replies.Backlog() > 0 {
			s.reveals.Ensure(postID)
		}
		result = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrItemNotFound
	}
	return result, nil
}

// revealStep discloses one more reply of a settled post. It reports
// whether hidden replies remain.
func (s *Store) revealStep(postID string) bool {
	more := false
	err := s.update(s.ctx, func() error {
		post, i, err := s.postLocked(postID)
		if err != nil || !post.Settled() {
			return errUnchanged
		}
		replies, ok := post.Replies.RevealNext()
		if !ok {
			return errUnchanged
		}
		next := post.Clone()
		next.Replies = replies
		s.replaceLocked(i, next)

		shown := replies.Visible()
		s.emitLocked(models.EventTypeReplyRevealed, models.EntityTypeReply, shown[len(shown)-1].ID, models.TimelinePayload{
			ItemID:   postID,
			ReplyID:  shown[len(shown)-1].ID,
			Count:    replies.Len(),
			Revealed: replies.Revealed(),
		})
		more = replies.Backlog() > 0
		return nil
	})
	if err != nil {
		return false
	}
	return more
}

// scheduleQuoteLocked arms the delayed quote-repost attempt for a post.
// The post is kept as the fallback source in case it disappears.
func (s *Store) scheduleQuoteLocked(post *models.Post) {
	if s.quotes.Ensure(post.ID) {
		s.pendingQuotes[post.ID] = post
	}
}

// quoteStep makes the single quote-repost attempt for a post.
func (s *Store) quoteStep(postID string) bool {
	ctx := s.ctx
	log := logging.WithItem(s.logger, postID)

	s.mu.Lock()
	shell := s.pendingQuotes[postID]
	delete(s.pendingQuotes, postID)
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return false
	}
	defer s.ops.Done()

	decision := s.quota.CheckAndManage(ctx)
	if !decision.CanProceed {
		s.emitLocked(models.EventTypeQuoteSkipped, models.EntityTypePost, postID, models.TimelinePayload{
			ItemID:  postID,
			Class:   models.ErrorClassQuotaDenied,
			Message: quotaText(decision.Message),
		})
		queued := s.outbox
		s.outbox = nil
		s.mu.Unlock()
		s.publish(ctx, queued)
		log.Info().Msg("quote-repost skipped: quota denied")
		return false
	}
	s.quota.Record(ctx)

	source := shell
	if current, _, err := s.postLocked(postID); err == nil {
		source = current
	}
	userName := s.mainUser.Name
	s.mu.Unlock()

	if source == nil {
		return false
	}

	comment, genErr := s.gen.GenerateQuoteComment(ctx, llm.QuoteRequest{
		OriginalPostText: source.Text,
		MainUserName:     userName,
	})

	_ = s.update(ctx, func() error {
		if comment == nil {
			class := classify(genErr, 0)
			s.setBannerLocked(class)
			s.emitLocked(models.EventTypeQuoteSkipped, models.EntityTypePost, postID, models.TimelinePayload{
				ItemID: postID,
				Class:  class,
			})
			logOutcome(log, class, genErr)
			return nil
		}

		qr := &models.QuoteRetweet{
			Type:       models.ItemTypeQuoteRetweet,
			ID:         s.newID(),
			User:       s.minter.QuotePersona(postID, comment.Username),
			Text:       comment.CommentText,
			Timestamp:  s.clock.Now().Add(s.cfg.QuoteOffset).UnixMilli(),
			QuotedPost: *source.Clone(),
		}
		s.prependLocked(qr)
		s.items.SortNewestFirst()
		s.pager.Widen()
		s.emitLocked(models.EventTypeQuoteCreated, models.EntityTypeQuote, qr.ID, models.TimelinePayload{ItemID: postID})
		log.Debug().Str("quote_id", qr.ID).Msg("quote-repost created")
		return nil
	})
	return false
}

func logOutcome(log zerolog.Logger, class models.ErrorClass, err error) {
	event := log.Warn()
	if class == models.ErrorClassEmptyResult {
		event = log.Info()
	}
	if err != nil {
		event = event.Str("error", logging.Redact(err.Error()))
	}
	event.Str("class", string(class)).Msg("generation did not produce content")
}

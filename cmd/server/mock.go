package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/service"
)

func plain(text string) domain.Document {
	return domain.Document{"rawContent": text, "contentFormat": string(domain.ContentFormatPlain)}
}

func fillWithMockData(posts *service.PostService, comments *service.CommentService) {
	ctx := context.Background()

	// 1. Создаем текстовый пост с включенными комментариями.
	post, err := posts.Create(ctx, domain.PostTypeText, domain.Document{
		"commentable": true,
		"content":     plain("Welcome to the community board. Introduce yourself below."),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create post")
	}
	postID := post[domain.FieldID].(string)

	// 2. Создаем первый корневой комментарий.
	c1, err := comments.Create(ctx, postID, domain.Document{"content": plain("Hi all, glad to be here!")})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create comment 1")
	}

	// 3. Создаем ответ на первый комментарий.
	if _, err := comments.Create(ctx, postID, domain.Document{
		"content": plain("Welcome aboard!"),
		"replyTo": c1[domain.FieldID],
	}); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create reply")
	}

	// 4. Опрос с выключенными комментариями.
	poll, err := posts.Create(ctx, domain.PostTypePoll, domain.Document{
		"commentable":                    false,
		"content":                        plain("Where should the summer meetup happen?"),
		"responseOptions":                []string{"Park", "Rooftop", "Online"},
		"allowAdditionalResponseOptions": true,
		"allowMultipleSelection":         false,
		"anonymous":                      true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create poll")
	}

	// 5. Событие и репост приветствия.
	if _, err := posts.Create(ctx, domain.PostTypeEvent, domain.Document{
		"commentable":      true,
		"content":          plain("Bring a friend."),
		"title":            "Summer meetup",
		"startDate":        "2025-07-12T16:00:00Z",
		"endDate":          "2025-07-12T20:00:00Z",
		"fullday":          false,
		"onSite":           true,
		"remote":           false,
		"category":         string(domain.EventCategoryParty),
		"registrationMode": string(domain.RegistrationInternal),
		"maxParticipants":  40,
		"location":         domain.Document{"name": "Community garden", "city": "Hamburg"},
	}); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create event")
	}
	if _, err := posts.Create(ctx, domain.PostTypeShared, domain.Document{
		"commentable": true,
		"sharedFrom":  postID,
	}); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create shared post")
	}

	log.Info().
		Str("post", postID).
		Str("poll", poll[domain.FieldID].(string)).
		Msg("Mock data filled successfully")
}

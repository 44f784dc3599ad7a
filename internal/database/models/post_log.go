package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostLog records one question posted to the channel.
type PostLog struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	QuestionID      primitive.ObjectID `bson:"questionId"`
	AskerID         int64              `bson:"askerId"`
	GradeLevel      GradeLevel         `bson:"gradeLevel"`
	MediaType       MediaType          `bson:"mediaType"`
	ApprovedBy      int64              `bson:"approvedBy"`
	ChannelID       int64              `bson:"channelId,omitempty"`
	ChannelUsername string             `bson:"channelUsername,omitempty"`
	ChannelPostID   int                `bson:"channelPostId"`
	SubmittedAt     time.Time          `bson:"submittedAt"`
	PublishedAt     time.Time          `bson:"publishedAt"`
}

// NewPostLog builds the log entry for q once it has a channel post.
func NewPostLog(q *Question, approvedBy int64) *PostLog {
	return &PostLog{
		QuestionID:    q.ID,
		AskerID:       q.UserID,
		GradeLevel:    q.GradeLevel,
		MediaType:     q.MediaType,
		ApprovedBy:    approvedBy,
		ChannelPostID: q.ChannelMessageID,
		SubmittedAt:   q.CreatedAt,
		PublishedAt:   time.Now(),
	}
}

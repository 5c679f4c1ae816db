package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spacesedan/reviewradar/internal/clients"
	"github.com/spacesedan/reviewradar/internal/models"
)

const (
	USERS_TABLE_NAME         = "Users"
	SAVED_REVIEWS_TABLE_NAME = "SavedReviews"

	TRIAL_SEARCH_LIMIT = 2
)

var dbClient *dynamodb.Client

func InitDynamoDB() {
	dbClient = clients.GetDynamoDBClient()
}

// Store is the persistence surface handed to the access gate and handlers.
type Store struct{}

func NewStore() *Store {
	if dbClient == nil {
		dbClient = clients.GetDynamoDBClient()
	}
	return &Store{}
}

// GetOrCreateUser upserts the account row and returns its post-image.
// A first sign-in lands at (0, false).
func (s *Store) GetOrCreateUser(ctx context.Context, email string) (models.UserAccount, error) {
	var account models.UserAccount

	out, err := dbClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(USERS_TABLE_NAME),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: email},
		},
		UpdateExpression: aws.String(
			"SET searches_used = if_not_exists(searches_used, :zero), " +
				"is_premium = if_not_exists(is_premium, :notpremium), " +
				"created_at = if_not_exists(created_at, :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":       &types.AttributeValueMemberN{Value: "0"},
			":notpremium": &types.AttributeValueMemberBOOL{Value: false},
			":now":        &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return account, fmt.Errorf("[DynamoDB] Failed to upsert user: %w", err)
	}

	if err := attributevalue.UnmarshalMap(out.Attributes, &account); err != nil {
		slog.Error("[DynamoDB] Unable to unmarshal user attributes",
			slog.String("error", err.Error()))
		return account, err
	}
	account.Email = email

	return account, nil
}

// IncrementSearches charges one trial search atomically. The ceiling
// lives in the ConditionExpression, so two concurrent searches cannot
// both be admitted past the limit.
func (s *Store) IncrementSearches(ctx context.Context, email string) (int, error) {
	out, err := dbClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(USERS_TABLE_NAME),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: email},
		},
		UpdateExpression:    aws.String("ADD searches_used :one"),
		ConditionExpression: aws.String("attribute_exists(email) AND searches_used < :ceiling"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":ceiling": &types.AttributeValueMemberN{Value: strconv.Itoa(TRIAL_SEARCH_LIMIT)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return TRIAL_SEARCH_LIMIT, models.ErrTrialExhausted
		}
		return 0, fmt.Errorf("[DynamoDB] Failed to increment searches: %w", err)
	}

	used, ok := out.Attributes["searches_used"]
	if !ok {
		return 0, fmt.Errorf("[DynamoDB] Increment returned no searches_used attribute")
	}
	n, ok := used.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("[DynamoDB] Unexpected searches_used attribute type")
	}
	count, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("[DynamoDB] Failed to parse searches_used: %w", err)
	}

	return count, nil
}

// MarkPremium flips the account to premium. Irreversible here.
func (s *Store) MarkPremium(ctx context.Context, email string) error {
	_, err := dbClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(USERS_TABLE_NAME),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: email},
		},
		UpdateExpression:    aws.String("SET is_premium = :premium"),
		ConditionExpression: aws.String("attribute_exists(email)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":premium": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to mark user premium: %w", err)
	}

	slog.Info("[DynamoDB] User marked premium", slog.String("email", email))
	return nil
}

// SaveReview appends one history record. Records are never mutated: the
// put is conditional on the (email, created_at) key being free, so a
// timestamp collision surfaces as an error instead of overwriting.
func (s *Store) SaveReview(ctx context.Context, record models.HistoryRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to marshal history record: %w", err)
	}

	_, err = dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(SAVED_REVIEWS_TABLE_NAME),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(created_at)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("[DynamoDB] History record key collision for %s at %d",
				record.Email, record.CreatedAt)
		}
		return fmt.Errorf("[DynamoDB] Failed to save review: %w", err)
	}

	slog.Info("[DynamoDB] Review saved",
		slog.String("email", record.Email),
		slog.String("product", record.Product))
	return nil
}

// ListRecentReviews returns up to limit records for an email, newest first.
func (s *Store) ListRecentReviews(ctx context.Context, email string, limit int) ([]models.HistoryRecord, error) {
	out, err := dbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(SAVED_REVIEWS_TABLE_NAME),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("[DynamoDB] Failed to query reviews: %w", err)
	}

	var records []models.HistoryRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		slog.Error("[DynamoDB] Unable to unmarshal history records",
			slog.String("error", err.Error()))
		return nil, err
	}

	return records, nil
}

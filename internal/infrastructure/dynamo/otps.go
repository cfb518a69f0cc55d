package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-shop-auth/internal/domain"
)

// OTPRepo holds at most one pending one-time code per email.
// PK: email. TTL attribute: expires_at.
type OTPRepo struct {
	client    API
	tableName string
}

func NewOTPRepo(client API, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

// Put writes c, replacing any pending code for the same email.
func (r *OTPRepo) Put(ctx context.Context, c *domain.OneTimeCode) error {
	c.Email = domain.NormalizeEmail(c.Email)
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Consume deletes the pending code for email in a single conditional write
// and returns it. The delete only happens when code and purpose match and
// the record has not expired; otherwise domain.ErrInvalidCode is returned.
// DynamoDB TTL reaping is lazy, so expiry is checked in the condition too.
func (r *OTPRepo) Consume(ctx context.Context, email, code string, purpose domain.Purpose, now time.Time) (*domain.OneTimeCode, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldEmail, domain.NormalizeEmail(email)),
		ConditionExpression: aws.String("#c = :c AND #p = :p AND #x > :now"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldCode,
			"#p": fieldPurpose,
			"#x": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: code},
			":p":   &types.AttributeValueMemberS{Value: string(purpose)},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if merr := r.recordMiss(ctx, email, now); merr != nil {
			return nil, merr
		}
		return nil, fmt.Errorf("no matching code: %w", domain.ErrInvalidCode)
	}
	if err != nil {
		return nil, err
	}
	var c domain.OneTimeCode
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// recordMiss counts a failed guess against a live pending code and deletes
// the code once domain.MaxCodeAttempts is reached. The delete is conditional
// on the count, so a fresh code written in between is left alone.
func (r *OTPRepo) recordMiss(ctx context.Context, email string, now time.Time) error {
	key := strKey(fieldEmail, domain.NormalizeEmail(email))
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 key,
		UpdateExpression:    aws.String("ADD #a :one"),
		ConditionExpression: aws.String("attribute_exists(#e) AND #x > :now"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#e": fieldEmail,
			"#x": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record otp miss: %w", err)
	}
	var counted struct {
		Attempts int `dynamodbav:"attempts"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counted); err != nil {
		return fmt.Errorf("record otp miss: %w", err)
	}
	if counted.Attempts < domain.MaxCodeAttempts {
		return nil
	}
	limit := strconv.Itoa(domain.MaxCodeAttempts)
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       key,
		ConditionExpression:       aws.String("#a >= :max"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldAttempts},
		ExpressionAttributeValues: map[string]types.AttributeValue{":max": &types.AttributeValueMemberN{Value: limit}},
	})
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("burn otp: %w", err)
	}
	return nil
}

// Discard removes the pending code for email only if it still holds code,
// so a newer code written by a concurrent request survives.
func (r *OTPRepo) Discard(ctx context.Context, email, code string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, domain.NormalizeEmail(email)),
		ConditionExpression:       aws.String("#c = :c"),
		ExpressionAttributeNames:  map[string]string{"#c": fieldCode},
		ExpressionAttributeValues: map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: code}},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	return err
}

package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/matrimony-api/internal/domain"
)

// BrokerRepo provides typed DynamoDB operations for the brokers table.
type BrokerRepo struct {
	client    API
	tableName string
}

func NewBrokerRepo(client API, tableName string) *BrokerRepo {
	return &BrokerRepo{client: client, tableName: tableName}
}

func (r *BrokerRepo) Create(ctx context.Context, b *domain.Broker) error {
	if b.IDProofs == nil {
		b.IDProofs = []domain.Image{}
	}
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal broker: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldBrokerID},
	})
	if _, failed := conditionFailed(err); failed {
		return fmt.Errorf("broker already exists: %w", domain.ErrConflict)
	}
	return err
}

func (r *BrokerRepo) Get(ctx context.Context, brokerID string) (*domain.Broker, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldBrokerID, brokerID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("broker not found: %w", domain.ErrNotFound)
	}
	var b domain.Broker
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BrokerRepo) GetByEmail(ctx context.Context, email string) (*domain.Broker, error) {
	return r.queryGSI(ctx, indexEmail, "email", email)
}

func (r *BrokerRepo) GetByPhone(ctx context.Context, phone string) (*domain.Broker, error) {
	return r.queryGSI(ctx, indexPhone, "phone", phone)
}

func (r *BrokerRepo) GetByReferralID(ctx context.Context, referralID string) (*domain.Broker, error) {
	return r.queryGSI(ctx, indexReferralID, "referral_id", referralID)
}

// AssignReferral sets the referral id once. A broker that already has one
// yields domain.ErrConflict.
func (r *BrokerRepo) AssignReferral(ctx context.Context, brokerID, referralID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldBrokerID, brokerID),
		UpdateExpression:    aws.String("SET #ref = :ref, #upd = :now"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND attribute_not_exists(#ref)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  fieldBrokerID,
			"#ref": fieldReferralID,
			"#upd": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ref": &types.AttributeValueMemberS{Value: referralID},
			":now": nowAV(),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if old, failed := conditionFailed(err); failed {
		if len(old) == 0 {
			return fmt.Errorf("broker not found: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("referral id already assigned: %w", domain.ErrConflict)
	}
	return err
}

// AddIDProofs appends uploaded identity documents to the broker's gallery.
func (r *BrokerRepo) AddIDProofs(ctx context.Context, brokerID string, proofs []domain.Image) error {
	av, err := attributevalue.Marshal(proofs)
	if err != nil {
		return fmt.Errorf("marshal id proofs: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldBrokerID, brokerID),
		UpdateExpression:    aws.String("SET #ids = list_append(if_not_exists(#ids, :empty), :new), #upd = :now"),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  fieldBrokerID,
			"#ids": fieldIDProofs,
			"#upd": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":   av,
			":empty": emptyList(),
			":now":   nowAV(),
		},
	})
	if _, failed := conditionFailed(err); failed {
		return fmt.Errorf("broker not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *BrokerRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Broker, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("broker not found: %w", domain.ErrNotFound)
	}
	var b domain.Broker
	if err := attributevalue.UnmarshalMap(out.Items[0], &b); err != nil {
		return nil, err
	}
	return &b, nil
}

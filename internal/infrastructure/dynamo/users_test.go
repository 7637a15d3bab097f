package dynamo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/matrimony-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

func (m *mockAPI) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.BatchGetItemOutput)
	return out, args.Error(1)
}

func ccf(item map[string]types.AttributeValue) error {
	return &types.ConditionalCheckFailedException{Message: strPtr("failed"), Item: item}
}

func strPtr(s string) *string { return &s }

func marshalUser(t *testing.T, u domain.User) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(u)
	require.NoError(t, err)
	return item
}

func TestUserRepo_Create_NormalizesLists(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		interests, ok := in.Item["interests"].(*types.AttributeValueMemberM)
		if !ok {
			return false
		}
		_, isList := interests.Value["sent"].(*types.AttributeValueMemberL)
		_, refsList := in.Item["txn_refs"].(*types.AttributeValueMemberL)
		return isList && refsList && *in.ConditionExpression == "attribute_not_exists(#pk)"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	require.NoError(t, repo.Create(context.Background(), &domain.User{UserID: "u1"}))
	api.AssertExpectations(t)
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, ccf(nil))

	err := repo.Create(context.Background(), &domain.User{UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_Get_NotFound(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_ConsumeCredit_Expression(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		v, _ := in.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN)
		id, _ := in.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS)
		return in.ExpressionAttributeNames["#l"] == domain.ListSent &&
			*in.ConditionExpression == "attribute_exists(#pk) AND NOT contains(#in.#l, :id) AND #ver = :v" &&
			v != nil && v.Value == "7" && id != nil && id.Value == "u2"
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	require.NoError(t, repo.ConsumeCredit(context.Background(), "u1", domain.ListSent, "u2", 7))
	api.AssertExpectations(t)
}

func TestUserRepo_ConsumeCredit_LostRace(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, ccf(marshalUser(t, domain.User{UserID: "u1"})))

	err := repo.ConsumeCredit(context.Background(), "u1", domain.ListViewed, "u2", 1)
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
}

func TestUserRepo_ConsumeCredit_MissingUser(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, ccf(nil))

	err := repo.ConsumeCredit(context.Background(), "u1", domain.ListSent, "u2", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_AppendInterest_AlreadyPresentIsNoop(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, ccf(marshalUser(t, domain.User{UserID: "u2"})))

	assert.NoError(t, repo.AppendInterest(context.Background(), "u2", domain.ListReceived, "u1", true))
}

func TestUserRepo_AppendInterest_NonUniqueHasNoContainsGuard(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		_, hasID := in.ExpressionAttributeValues[":id"]
		return *in.ConditionExpression == "attribute_exists(#pk)" && !hasID
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	require.NoError(t, repo.AppendInterest(context.Background(), "u1", domain.ListAccepted, "u2", false))
	api.AssertExpectations(t)
}

func TestUserRepo_CreditPurchase_GuardsBothRefs(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		r0, _ := in.ExpressionAttributeValues[":ref0"].(*types.AttributeValueMemberS)
		r1, _ := in.ExpressionAttributeValues[":ref1"].(*types.AttributeValueMemberS)
		n, _ := in.ExpressionAttributeValues[":n"].(*types.AttributeValueMemberN)
		return *in.ConditionExpression == "attribute_exists(#pk) AND NOT contains(#refs, :ref0) AND NOT contains(#refs, :ref1)" &&
			r0 != nil && r0.Value == "order:o1" &&
			r1 != nil && r1.Value == "payment:p1" &&
			n != nil && n.Value == "10"
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	err := repo.CreditPurchase(context.Background(), "u1", domain.Transaction{
		OrderID: "o1", PaymentID: "p1", AmountPaid: 499, NoOfInterest: 10, DateOfTrans: time.Now(),
	})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestUserRepo_CreditPurchase_DuplicateIsConflict(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, ccf(marshalUser(t, domain.User{UserID: "u1"})))

	err := repo.CreditPurchase(context.Background(), "u1", domain.Transaction{OrderID: "o1", NoOfInterest: 10})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_CompleteAstrology_AlreadyCompleted(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	old := domain.User{UserID: "u1", Astrology: []domain.AstrologyEntry{{UID: "r1", Status: domain.AstrologyCompleted}}}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.ConditionExpression == "#astro[0].#uid = :uid AND #astro[0].#st = :pending"
	})).Return(nil, ccf(marshalUser(t, old)))

	err := repo.CompleteAstrology(context.Background(), "u1", 0, "r1", "{}", time.Now())
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)
}

func TestUserRepo_CompleteAstrology_ShiftedList(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	old := domain.User{UserID: "u1", Astrology: []domain.AstrologyEntry{
		{UID: "r2", Status: domain.AstrologyPending},
		{UID: "r1", Status: domain.AstrologyPending},
	}}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, ccf(marshalUser(t, old)))

	err := repo.CompleteAstrology(context.Background(), "u1", 0, "r1", "{}", time.Now())
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
}

func TestUserRepo_Count_SumsPages(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	lastKey := map[string]types.AttributeValue{"user_id": &types.AttributeValueMemberS{Value: "u9"}}
	api.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.ScanOutput{Count: 9, LastEvaluatedKey: lastKey}, nil).Once()
	api.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.ScanOutput{Count: 3}, nil).Once()

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestUserRepo_GetMany_ChunksAndSkipsMissing(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	ids := make([]string, 0, 101)
	for i := 0; i < 101; i++ {
		ids = append(ids, fmt.Sprintf("u%03d", i))
	}
	api.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		return len(in.RequestItems["users"].Keys) == 100
	})).Return(&dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{
		"users": {marshalUser(t, domain.User{UserID: "u000"})},
	}}, nil).Once()
	api.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		return len(in.RequestItems["users"].Keys) == 1
	})).Return(&dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{
		"users": {marshalUser(t, domain.User{UserID: "u100"})},
	}}, nil).Once()

	users, err := repo.GetMany(context.Background(), append(ids, "u000"))
	require.NoError(t, err)
	require.Len(t, users, 2)
	api.AssertExpectations(t)
}

package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) SaveSession(session types.CallSession) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.config.SessionsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetSession(callID string) (*types.CallSession, error) {
	result, err := s.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(s.config.SessionsTable),
		Key:       callKey(callID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var session types.CallSession
	if err := attributevalue.UnmarshalMap(result.Item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *DynamoDBStore) ListSessions() ([]types.CallSession, error) {
	result, err := s.client.Scan(context.Background(), &dynamodb.ScanInput{
		TableName: aws.String(s.config.SessionsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	var sessions []types.CallSession
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sessions: %w", err)
	}
	return sessions, nil
}

func (s *DynamoDBStore) ListActiveSessions() ([]types.CallSession, error) {
	filter := expression.Name("Status").NotEqual(expression.Value(string(types.StatusCompleted))).
		And(expression.Name("Status").NotEqual(expression.Value(string(types.StatusFailed))))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(context.Background(), &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.SessionsTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan active sessions: %w", err)
	}

	var sessions []types.CallSession
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sessions: %w", err)
	}
	return sessions, nil
}

func (s *DynamoDBStore) SaveResult(result types.CallResult) error {
	item, err := attributevalue.MarshalMap(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.config.ResultsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetResult(callID string) (*types.CallResult, error) {
	result, err := s.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(s.config.ResultsTable),
		Key:       callKey(callID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var callResult types.CallResult
	if err := attributevalue.UnmarshalMap(result.Item, &callResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &callResult, nil
}

func (s *DynamoDBStore) ListResults() ([]types.CallResult, error) {
	result, err := s.client.Scan(context.Background(), &dynamodb.ScanInput{
		TableName: aws.String(s.config.ResultsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan results: %w", err)
	}

	var results []types.CallResult
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	return results, nil
}

func (s *DynamoDBStore) CountSessions(status types.SessionStatus) (int, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.config.SessionsTable),
		Select:    dbtypes.SelectCount,
	}

	if status != "" {
		filter := expression.Name("Status").Equal(expression.Value(string(status)))
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return 0, fmt.Errorf("failed to build expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	result, err := s.client.Scan(context.Background(), input)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(result.Count), nil
}

func (s *DynamoDBStore) CountSessionsByCampaign(campaign types.CampaignType) (int, error) {
	filter := expression.Name("Campaign").Equal(expression.Value(string(campaign)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(context.Background(), &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.SessionsTable),
		Select:                    dbtypes.SelectCount,
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions by campaign: %w", err)
	}
	return int(result.Count), nil
}

func callKey(callID string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"CallID": &dbtypes.AttributeValueMemberS{Value: callID},
	}
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=memory)")
		return NewMemoryStore(), nil
	}
}

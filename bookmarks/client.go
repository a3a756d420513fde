// Package bookmarks is the signed HTTP client for the bookmarking and
// search services. Requests are signed with credentials from an assumed
// service role; retries are left to infrastructure-level redelivery.
package bookmarks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/bkmark/slack-integration"
)

const (
	createPath       = "/bkmark/internal/bookmarks"
	getBookmarksPath = "/bkmark/internal/get-bookmarks"
	getBookmarkPath  = "/bkmark/internal/get-bookmark"
	searchPath       = "/search/internal/search"

	signingService = "execute-api"
	requestTimeout = 15 * time.Second
)

// STSClient is the slice of the STS client used to assume the service
// role.
type STSClient interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

var _ STSClient = (*sts.Client)(nil)

// CreateRequest asks the bookmarking service to create a bookmark on a
// user's behalf.
type CreateRequest struct {
	URL            string `json:"url"`
	UserID         string `json:"userId"`
	CollectionID   string `json:"collectionId"`
	OrganisationID string `json:"organisationId"`
	Origin         string `json:"origin"`
}

// SearchRequest queries a user's bookmarks.
type SearchRequest struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
}

// GetRequest fetches one bookmark or a collection's bookmarks.
type GetRequest struct {
	UserID         string `json:"userId"`
	OrganisationID string `json:"organisationId,omitempty"`
	CollectionID   string `json:"collectionId,omitempty"`
	BookmarkID     string `json:"bookmarkId,omitempty"`
}

type bookmarksResponse struct {
	Data struct {
		Bookmarks []bkmark.Bookmark `json:"bookmarks"`
		Bookmark  *bkmark.Bookmark  `json:"bookmark"`
	} `json:"data"`
}

// Client calls the bookmarking/search services with signed requests.
type Client struct {
	httpClient *http.Client
	sts        STSClient
	signer     *v4.Signer
	baseURL    string
	roleARN    string
	region     string
	logger     zerolog.Logger
}

// New creates a Client for the service at baseURL, signing with
// credentials assumed from roleARN.
func New(stsClient STSClient, baseURL, roleARN, region string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		sts:        stsClient,
		signer:     v4.NewSigner(),
		baseURL:    baseURL,
		roleARN:    roleARN,
		region:     region,
		logger:     logger.With().Str("component", "bookmarks").Logger(),
	}
}

// RequestCreate submits a create-bookmark request.
func (c *Client) RequestCreate(ctx context.Context, request CreateRequest) error {
	if err := c.post(ctx, createPath, request, nil); err != nil {
		c.logger.Error().Err(err).Str("url", request.URL).Str("user_id", request.UserID).
			Msg("There was an issue contacting the bookmarks service")
		return err
	}
	return nil
}

// GetBookmarks fetches the bookmarks of a collection.
func (c *Client) GetBookmarks(ctx context.Context, request GetRequest) ([]bkmark.Bookmark, error) {
	var response bookmarksResponse
	if err := c.post(ctx, getBookmarksPath, request, &response); err != nil {
		return nil, err
	}
	return response.Data.Bookmarks, nil
}

// GetBookmark fetches a single bookmark.
func (c *Client) GetBookmark(ctx context.Context, request GetRequest) (*bkmark.Bookmark, error) {
	var response bookmarksResponse
	if err := c.post(ctx, getBookmarkPath, request, &response); err != nil {
		return nil, err
	}
	if response.Data.Bookmark == nil {
		return nil, bkmark.NotFoundError(fmt.Sprintf("bookmark %s not found", request.BookmarkID))
	}
	return response.Data.Bookmark, nil
}

// Search queries the search service for a user's bookmarks.
func (c *Client) Search(ctx context.Context, request SearchRequest) ([]bkmark.Bookmark, error) {
	var response bookmarksResponse
	if err := c.post(ctx, searchPath, request, &response); err != nil {
		return nil, err
	}
	return response.Data.Bookmarks, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-correlation-id", bkmark.CorrelationID(ctx))

	credentials, err := c.assumeRole(ctx)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, credentials, req, hex.EncodeToString(hash[:]), signingService, c.region, time.Now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bkmark.UpstreamError(fmt.Sprintf("request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return bkmark.UpstreamError(fmt.Sprintf("request to %s returned status %d", path, resp.StatusCode), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return bkmark.UpstreamError(fmt.Sprintf("failed to decode response from %s", path), err)
		}
	}

	return nil
}

func (c *Client) assumeRole(ctx context.Context) (aws.Credentials, error) {
	response, err := c.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(c.roleARN),
		RoleSessionName: aws.String(fmt.Sprintf("bkmark-slack-%s", bkmark.CorrelationID(ctx))),
	})
	if err != nil {
		return aws.Credentials{}, bkmark.UpstreamError("failed to assume the service role", err)
	}
	if response.Credentials == nil {
		return aws.Credentials{}, bkmark.UpstreamError("assume role returned no credentials", nil)
	}

	return aws.Credentials{
		AccessKeyID:     aws.ToString(response.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(response.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(response.Credentials.SessionToken),
	}, nil
}

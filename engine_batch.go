package authemu

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/authemu/password"
	"github.com/MrEthical07/authemu/state"
)

const (
	maxBatchSize         = 1000
	defaultBatchGetLimit = 20
	defaultQueryLimit    = 500
)

// ImportUser is one account of a batchCreate request.
type ImportUser struct {
	LocalID          string                   `json:"localId"`
	Email            string                   `json:"email,omitempty"`
	EmailVerified    bool                     `json:"emailVerified,omitempty"`
	DisplayName      string                   `json:"displayName,omitempty"`
	PhotoURL         string                   `json:"photoUrl,omitempty"`
	PhoneNumber      string                   `json:"phoneNumber,omitempty"`
	PasswordHash     string                   `json:"passwordHash,omitempty"`
	Salt             string                   `json:"salt,omitempty"`
	RawPassword      string                   `json:"rawPassword,omitempty"`
	Disabled         bool                     `json:"disabled,omitempty"`
	CustomAttributes string                   `json:"customAttributes,omitempty"`
	ProviderUserInfo []state.ProviderUserInfo `json:"providerUserInfo,omitempty"`
	MfaInfo          []MfaEnrollmentInput     `json:"mfaInfo,omitempty"`
	CreatedAt        Int64                    `json:"createdAt,omitempty"`
	LastLoginAt      Int64                    `json:"lastLoginAt,omitempty"`
}

// BatchCreateRequest imports accounts, optionally with hashed passwords.
type BatchCreateRequest struct {
	Users           []ImportUser `json:"users"`
	HashAlgorithm   string       `json:"hashAlgorithm,omitempty"`
	SignerKey       string       `json:"signerKey,omitempty"`
	Rounds          int          `json:"rounds,omitempty"`
	MemoryCost      int          `json:"memoryCost,omitempty"`
	Parallelization int          `json:"parallelization,omitempty"`
	BlockSize       int          `json:"blockSize,omitempty"`
	DkLen           int          `json:"dkLen,omitempty"`
	AllowOverwrite  bool         `json:"allowOverwrite,omitempty"`
	SanityCheck     bool         `json:"sanityCheck,omitempty"`
	TenantID        string       `json:"tenantId,omitempty"`
}

// BatchError reports why one entry of a batch request failed.
type BatchError struct {
	Index   int    `json:"index"`
	LocalID string `json:"localId,omitempty"`
	Message string `json:"message"`
}

// BatchCreateResponse lists the entries that were not imported.
type BatchCreateResponse struct {
	Kind  string       `json:"kind"`
	Error []BatchError `json:"error,omitempty"`
}

// BatchCreate imports accounts. Entries that fail validation are reported
// individually; the others are stored.
func (e *Engine) BatchCreate(ctx context.Context, t Target, req *BatchCreateRequest) (*BatchCreateResponse, error) {
	if req == nil {
		req = &BatchCreateRequest{}
	}
	return run(e, ctx, OpBatchCreate, t, req.TenantID, func(c *call) (*BatchCreateResponse, error) {
		return c.batchCreate(req)
	})
}

func (c *call) batchCreate(req *BatchCreateRequest) (*BatchCreateResponse, error) {
	if len(req.Users) == 0 {
		return nil, badRequestDetail(CodeMissingUserAccount, "users")
	}
	if len(req.Users) > maxBatchSize {
		return nil, badRequestDetail(CodeInvalidArgument, "A maximum of 1000 users can be imported at once.")
	}

	hashCfg, err := c.importHashConfig(req)
	if err != nil {
		return nil, err
	}
	if req.SanityCheck {
		if err := c.importSanityCheck(req.Users); err != nil {
			return nil, err
		}
	}

	resp := &BatchCreateResponse{Kind: "identitytoolkit#UploadAccountResponse"}
	for i := range req.Users {
		if msg := c.importUser(&req.Users[i], hashCfg, req.AllowOverwrite); msg != "" {
			resp.Error = append(resp.Error, BatchError{Index: i, Message: msg})
			continue
		}
		c.e.metrics.Inc(MetricUserImported)
	}
	return resp, nil
}

func (c *call) importHashConfig(req *BatchCreateRequest) (*password.Config, error) {
	alg, err := password.ParseAlgorithm(req.HashAlgorithm)
	if err != nil {
		return nil, notImplemented("Unsupported hash algorithm " + req.HashAlgorithm)
	}
	if alg == password.AlgorithmFake {
		return nil, nil
	}
	cfg := &password.Config{
		Algorithm:        alg,
		Rounds:           req.Rounds,
		MemoryCost:       req.MemoryCost,
		Parallelization:  req.Parallelization,
		BlockSize:        req.BlockSize,
		DerivedKeyLength: req.DkLen,
	}
	if req.SignerKey != "" {
		key, err := decodeBase64(req.SignerKey)
		if err != nil {
			return nil, badRequestDetail(CodeInvalidArgument, "signerKey must be base64")
		}
		cfg.SignerKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, badRequestDetail(CodeInvalidArgument, strings.TrimPrefix(err.Error(), "password: "))
	}
	return cfg, nil
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// importSanityCheck rejects the whole batch when entries collide with each
// other. Entries without a localId are left to the per-user "localId is
// missing" report.
func (c *call) importSanityCheck(users []ImportUser) error {
	localIDs := make(map[string]struct{}, len(users))
	emails := make(map[string]struct{}, len(users))
	rawIDs := make(map[string]struct{})
	for _, u := range users {
		if u.LocalID != "" {
			if _, dup := localIDs[u.LocalID]; dup {
				return badRequestDetail(CodeDuplicateLocalID, u.LocalID)
			}
			localIDs[u.LocalID] = struct{}{}
		}

		if u.Email != "" && c.st.OneAccountPerEmail() {
			email := c.canonicalEmail(u.Email)
			if _, dup := emails[email]; dup {
				return badRequestDetail(CodeDuplicateEmail, u.Email)
			}
			emails[email] = struct{}{}
		}
		for _, p := range u.ProviderUserInfo {
			key := p.ProviderID + ":" + p.RawID
			if _, dup := rawIDs[key]; dup {
				return badRequestDetail(CodeDuplicateRawID, "Provider id("+p.ProviderID+"), Raw id("+p.RawID+")")
			}
			rawIDs[key] = struct{}{}
		}
	}
	return nil
}

// importUser stores one account and returns the message describing why it
// could not, or "".
func (c *call) importUser(in *ImportUser, hashCfg *password.Config, allowOverwrite bool) string {
	if in.LocalID == "" {
		return "localId is missing"
	}
	u := state.UserInfo{
		EmailVerified: in.EmailVerified,
		DisplayName:   in.DisplayName,
		PhotoURL:      in.PhotoURL,
		Disabled:      in.Disabled,
		CreatedAt:     int64(in.CreatedAt),
		LastLoginAt:   int64(in.LastLoginAt),
	}
	if u.CreatedAt == 0 {
		u.CreatedAt = c.nowMillis()
	}
	if in.Email != "" {
		if !c.e.emails.Valid(in.Email) {
			return "email is invalid"
		}
		u.Email = c.canonicalEmail(in.Email)
	}
	if in.PhoneNumber != "" {
		if !c.e.phones.Valid(in.PhoneNumber) {
			return "phone number format is invalid"
		}
		u.PhoneNumber = in.PhoneNumber
	}
	if in.CustomAttributes != "" {
		if _, err := parseCustomAttributes(in.CustomAttributes); err != nil {
			return importClaimsMessage(err)
		}
		u.CustomAttributes = in.CustomAttributes
	}
	for _, p := range in.ProviderUserInfo {
		if p.ProviderID == "" {
			return "providerId is missing"
		}
		if !state.IsFederated(p.ProviderID) {
			return "\"" + p.ProviderID + "\" provider is not supported"
		}
		if p.RawID == "" {
			return "raw id is missing"
		}
		if p.FederatedID == "" {
			p.FederatedID = p.RawID
		}
		u.ProviderUserInfo = append(u.ProviderUserInfo, p)
	}
	if len(in.MfaInfo) > 0 {
		mfa, err := c.buildEnrollments(in.MfaInfo)
		if err != nil {
			return AsError(err).Error()
		}
		u.MfaInfo = mfa
	}

	switch {
	case in.RawPassword != "":
		u.Salt = password.NewSalt()
		u.PasswordHash = password.FakeHash(in.RawPassword, u.Salt)
		u.PasswordUpdatedAt = c.nowMillis()
	case in.PasswordHash != "":
		u.PasswordHash = in.PasswordHash
		u.Salt = in.Salt
		u.PasswordUpdatedAt = c.nowMillis()
		if hashCfg != nil {
			cfg := *hashCfg
			u.HashConfig = &cfg
		}
	}

	var err error
	if allowOverwrite {
		_, err = c.st.OverwriteUserWithLocalID(in.LocalID, u)
	} else {
		_, err = c.st.CreateUserWithLocalID(in.LocalID, u)
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, state.ErrLocalIDExists):
		return "localId belongs to an existing account"
	case errors.Is(err, state.ErrEmailExists):
		return "email exists in other account in database"
	case errors.Is(err, state.ErrPhoneExists):
		return "phone number exists in other account in database"
	case errors.Is(err, state.ErrProviderLinked):
		return "raw id exists in other account in database"
	default:
		return AsError(storeError(err)).Error()
	}
}

// BatchDeleteRequest names the accounts to delete.
type BatchDeleteRequest struct {
	LocalIDs []string `json:"localIds"`
	Force    bool     `json:"force,omitempty"`
	TenantID string   `json:"tenantId,omitempty"`
}

// BatchDeleteResponse lists the accounts that could not be deleted.
type BatchDeleteResponse struct {
	Errors []BatchError `json:"errors,omitempty"`
}

// BatchDelete removes accounts. Enabled accounts are skipped and reported
// unless Force is set. Unknown ids are ignored.
func (e *Engine) BatchDelete(ctx context.Context, t Target, req *BatchDeleteRequest) (*BatchDeleteResponse, error) {
	if req == nil {
		req = &BatchDeleteRequest{}
	}
	return run(e, ctx, OpBatchDelete, t, req.TenantID, func(c *call) (*BatchDeleteResponse, error) {
		if len(req.LocalIDs) > maxBatchSize {
			return nil, badRequest(CodeLocalIDListExceedsLimit)
		}
		resp := &BatchDeleteResponse{}
		for i, id := range req.LocalIDs {
			u := c.st.GetUserByLocalID(id)
			if u == nil {
				continue
			}
			if !u.Disabled && !req.Force {
				resp.Errors = append(resp.Errors, BatchError{
					Index:   i,
					LocalID: id,
					Message: CodeNotDisabled + " : Disable the account before batch deletion.",
				})
				continue
			}
			if err := c.st.DeleteUser(id); err != nil {
				return nil, storeError(err)
			}
			c.e.metrics.Inc(MetricUserDeleted)
		}
		return resp, nil
	})
}

// BatchGetRequest pages through accounts in local id order.
type BatchGetRequest struct {
	MaxResults    Int64  `json:"maxResults,omitempty"`
	NextPageToken string `json:"nextPageToken,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
}

// BatchGetResponse is one page of accounts.
type BatchGetResponse struct {
	Kind          string            `json:"kind"`
	Users         []*state.UserInfo `json:"users,omitempty"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

// BatchGet pages through every account in local id order.
func (e *Engine) BatchGet(ctx context.Context, t Target, req *BatchGetRequest) (*BatchGetResponse, error) {
	if req == nil {
		req = &BatchGetRequest{}
	}
	return run(e, ctx, OpBatchGet, t, req.TenantID, func(c *call) (*BatchGetResponse, error) {
		limit := int(req.MaxResults)
		switch {
		case limit < 0:
			return nil, badRequestDetail(CodeInvalidArgument, "maxResults must not be negative")
		case limit == 0:
			limit = defaultBatchGetLimit
		case limit > maxBatchSize:
			limit = maxBatchSize
		}
		users := c.st.QueryUsers(nil, state.QueryOptions{
			SortBy:     state.SortByLocalID,
			Order:      state.Ascending,
			StartToken: req.NextPageToken,
		})
		resp := &BatchGetResponse{Kind: "identitytoolkit#DownloadAccountResponse"}
		if len(users) > limit {
			users = users[:limit]
			resp.NextPageToken = users[limit-1].LocalID
		}
		resp.Users = users
		return resp, nil
	})
}

// QueryExpression selects accounts by exact match on one field.
type QueryExpression struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// QueryRequest filters, sorts and counts accounts.
type QueryRequest struct {
	ReturnUserInfo *bool             `json:"returnUserInfo,omitempty"`
	Limit          Int64             `json:"limit,omitempty"`
	Offset         Int64             `json:"offset,omitempty"`
	SortBy         string            `json:"sortBy,omitempty"`
	Order          string            `json:"order,omitempty"`
	Expression     []QueryExpression `json:"expression,omitempty"`
	TenantID       string            `json:"tenantId,omitempty"`
}

// QueryResponse carries the matched accounts and their count.
type QueryResponse struct {
	RecordsCount string            `json:"recordsCount"`
	UserInfo     []*state.UserInfo `json:"userInfo,omitempty"`
}

var querySortFields = map[string]state.SortField{
	"":              state.SortByLocalID,
	"USER_ID":       state.SortByLocalID,
	"NAME":          state.SortByDisplayName,
	"CREATED_AT":    state.SortByCreatedAt,
	"LAST_LOGIN_AT": state.SortByLastLoginAt,
	"USER_EMAIL":    state.SortByEmail,
}

// Query searches accounts. Expressions are OR'ed; none matches everything.
func (e *Engine) Query(ctx context.Context, t Target, req *QueryRequest) (*QueryResponse, error) {
	if req == nil {
		req = &QueryRequest{}
	}
	return run(e, ctx, OpQuery, t, req.TenantID, func(c *call) (*QueryResponse, error) {
		return c.query(req)
	})
}

func (c *call) query(req *QueryRequest) (*QueryResponse, error) {
	field, ok := querySortFields[req.SortBy]
	if !ok {
		return nil, badRequestDetail(CodeInvalidArgument, "Invalid sortBy: "+req.SortBy)
	}
	var order state.SortOrder
	switch req.Order {
	case "", "ASC":
		order = state.Ascending
	case "DESC":
		order = state.Descending
	default:
		return nil, badRequestDetail(CodeInvalidArgument, "Invalid order: "+req.Order)
	}
	if req.Offset < 0 {
		return nil, badRequestDetail(CodeInvalidArgument, "offset must not be negative")
	}
	limit := int(req.Limit)
	if limit < 0 {
		return nil, badRequestDetail(CodeInvalidArgument, "limit must not be negative")
	}
	if limit == 0 || limit > defaultQueryLimit {
		limit = defaultQueryLimit
	}

	filters := make([]state.QueryFilter, 0, len(req.Expression))
	for _, expr := range req.Expression {
		f := state.QueryFilter{LocalID: expr.UserID, PhoneNumber: expr.PhoneNumber}
		if expr.Email != "" {
			f.Email = c.canonicalEmail(expr.Email)
		}
		filters = append(filters, f)
	}

	users := c.st.QueryUsers(filters, state.QueryOptions{SortBy: field, Order: order})
	resp := &QueryResponse{RecordsCount: strconv.Itoa(len(users))}
	if req.ReturnUserInfo != nil && !*req.ReturnUserInfo {
		return resp, nil
	}
	offset := int(req.Offset)
	if offset > len(users) {
		offset = len(users)
	}
	users = users[offset:]
	if len(users) > limit {
		users = users[:limit]
	}
	resp.UserInfo = users
	return resp, nil
}

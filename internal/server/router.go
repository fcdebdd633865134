package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/core"
	"github.com/gridstonehq/gridstone/backend/internal/realtime"
	"github.com/gridstonehq/gridstone/backend/internal/records"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"github.com/gridstonehq/gridstone/backend/internal/users"
	"github.com/gridstonehq/gridstone/backend/internal/views"
	"go.uber.org/zap"
)

const userIDContextKey = "gridstone_user_id"

var (
	errMissingTokenIssuer = errors.New("token issuer dependency required")
	errMissingUsers       = errors.New("users service dependency required")
	errMissingSchema      = errors.New("schema service dependency required")
	errMissingAccess      = errors.New("access service dependency required")
	errMissingRecords     = errors.New("records service dependency required")
	errMissingViews       = errors.New("views service dependency required")
	errMissingBroadcaster = errors.New("broadcaster dependency required")
	errInvalidAuthHeader  = errors.New("authorization header missing or invalid")
)

// TokenIssuer issues and validates bearer tokens for the HTTP surface.
type TokenIssuer interface {
	IssueToken(userID int64) (string, int64, error)
	ValidateToken(token string) (int64, error)
}

// Dependencies wires the services behind the HTTP handler.
type Dependencies struct {
	TokenIssuer TokenIssuer
	Users       *users.Service
	Schema      *schema.Service
	Access      *access.Service
	Records     *records.Service
	Views       *views.Service
	Broadcaster *realtime.Broadcaster
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router. Handlers are thin wrappers: they
// decode, delegate to a service, and map typed errors to status codes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.TokenIssuer == nil:
		return nil, errMissingTokenIssuer
	case deps.Users == nil:
		return nil, errMissingUsers
	case deps.Schema == nil:
		return nil, errMissingSchema
	case deps.Access == nil:
		return nil, errMissingAccess
	case deps.Records == nil:
		return nil, errMissingRecords
	case deps.Views == nil:
		return nil, errMissingViews
	case deps.Broadcaster == nil:
		return nil, errMissingBroadcaster
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{deps: deps, logger: logger}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/ws/tables/:tableID", handler.handleTableSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	{
		protected.POST("/bases", handler.handleCreateBase)
		protected.GET("/bases", handler.handleListBases)
		protected.GET("/bases/:baseID", handler.handleGetBase)
		protected.PUT("/bases/:baseID", handler.handleRenameBase)
		protected.DELETE("/bases/:baseID", handler.handleDeleteBase)

		protected.POST("/bases/:baseID/tables", handler.handleCreateTable)
		protected.GET("/bases/:baseID/tables", handler.handleListTables)
		protected.GET("/tables/:tableID", handler.handleGetTable)
		protected.PUT("/tables/:tableID", handler.handleRenameTable)
		protected.DELETE("/tables/:tableID", handler.handleDeleteTable)

		protected.POST("/tables/:tableID/fields", handler.handleCreateField)
		protected.GET("/tables/:tableID/fields", handler.handleListFields)
		protected.PUT("/fields/:fieldID", handler.handleUpdateField)
		protected.DELETE("/fields/:fieldID", handler.handleDeleteField)

		protected.POST("/tables/:tableID/records", handler.handleCreateRecord)
		protected.GET("/tables/:tableID/records", handler.handleListRecords)
		protected.GET("/records/:recordID", handler.handleGetRecord)
		protected.PUT("/records/:recordID", handler.handleUpdateRecord)
		protected.DELETE("/records/:recordID", handler.handleDeleteRecord)
		protected.GET("/records/:recordID/links", handler.handleRecordLinks)
		protected.GET("/records/:recordID/backlinks", handler.handleRecordBacklinks)

		protected.POST("/tables/:tableID/views", handler.handleCreateView)
		protected.GET("/tables/:tableID/views", handler.handleListViews)
		protected.GET("/views/:viewID", handler.handleGetView)
		protected.PUT("/views/:viewID", handler.handleUpdateView)
		protected.DELETE("/views/:viewID", handler.handleDeleteView)

		protected.POST("/tables/:tableID/permissions", handler.handleGrantPermission)
		protected.GET("/tables/:tableID/permissions", handler.handleListPermissions)
		protected.DELETE("/tables/:tableID/permissions/:userID", handler.handleRevokePermission)
	}

	return router, nil
}

type httpHandler struct {
	deps   Dependencies
	logger *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthHeader.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthHeader.Error()})
		return
	}
	userID, err := h.deps.TokenIssuer.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) actorID(c *gin.Context) int64 {
	return c.GetInt64(userIDContextKey)
}

// respondError maps the typed error taxonomy onto HTTP status codes.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindForbidden:
		status = http.StatusForbidden
	case core.KindValidation:
		status = http.StatusBadRequest
	case core.KindConflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.deps.Users.Register(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.deps.Users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token, expiresIn, err := h.deps.TokenIssuer.IssueToken(user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      user.ID,
	})
}

type namePayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateBase(c *gin.Context) {
	var request namePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	base, err := h.deps.Schema.CreateBase(c.Request.Context(), h.actorID(c), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, base)
}

func (h *httpHandler) handleListBases(c *gin.Context) {
	skip, limit := paging(c)
	bases, err := h.deps.Schema.ListBases(c.Request.Context(), h.actorID(c), skip, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bases)
}

func (h *httpHandler) handleGetBase(c *gin.Context) {
	baseID, ok := pathID(c, "baseID")
	if !ok {
		return
	}
	base, err := h.deps.Schema.GetBase(c.Request.Context(), baseID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, base)
}

func (h *httpHandler) handleRenameBase(c *gin.Context) {
	baseID, ok := pathID(c, "baseID")
	if !ok {
		return
	}
	var request namePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	base, err := h.deps.Schema.RenameBase(c.Request.Context(), baseID, h.actorID(c), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, base)
}

func (h *httpHandler) handleDeleteBase(c *gin.Context) {
	baseID, ok := pathID(c, "baseID")
	if !ok {
		return
	}
	if err := h.deps.Schema.DeleteBase(c.Request.Context(), baseID, h.actorID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreateTable(c *gin.Context) {
	baseID, ok := pathID(c, "baseID")
	if !ok {
		return
	}
	var request namePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	table, err := h.deps.Schema.CreateTable(c.Request.Context(), baseID, h.actorID(c), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (h *httpHandler) handleListTables(c *gin.Context) {
	baseID, ok := pathID(c, "baseID")
	if !ok {
		return
	}
	tables, err := h.deps.Schema.ListTables(c.Request.Context(), baseID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

func (h *httpHandler) handleGetTable(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	table, err := h.deps.Schema.GetTable(c.Request.Context(), tableID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *httpHandler) handleRenameTable(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	var request namePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	table, err := h.deps.Schema.RenameTable(c.Request.Context(), tableID, h.actorID(c), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *httpHandler) handleDeleteTable(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	if err := h.deps.Schema.DeleteTable(c.Request.Context(), tableID, h.actorID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type fieldPayload struct {
	Name    string               `json:"name"`
	Type    string               `json:"type"`
	Options *schema.FieldOptions `json:"options"`
}

func (h *httpHandler) handleCreateField(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	var request fieldPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	opts := schema.FieldOptions{}
	if request.Options != nil {
		opts = *request.Options
	}
	field, err := h.deps.Schema.CreateField(c.Request.Context(), tableID, h.actorID(c),
		request.Name, schema.FieldType(request.Type), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, field)
}

func (h *httpHandler) handleListFields(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	fields, err := h.deps.Schema.ListFields(c.Request.Context(), tableID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

func (h *httpHandler) handleUpdateField(c *gin.Context) {
	fieldID, ok := pathID(c, "fieldID")
	if !ok {
		return
	}
	var request fieldPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	field, err := h.deps.Schema.UpdateField(c.Request.Context(), fieldID, h.actorID(c),
		request.Name, request.Options)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, field)
}

func (h *httpHandler) handleDeleteField(c *gin.Context) {
	fieldID, ok := pathID(c, "fieldID")
	if !ok {
		return
	}
	if err := h.deps.Schema.DeleteField(c.Request.Context(), fieldID, h.actorID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type recordPayload struct {
	Values map[string]any `json:"values"`
}

// fieldValues converts JSON object keys (always strings) to field ids.
func (p recordPayload) fieldValues() (map[int64]any, error) {
	values := make(map[int64]any, len(p.Values))
	for key, value := range p.Values {
		fieldID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.New("field keys must be numeric ids")
		}
		values[fieldID] = value
	}
	return values, nil
}

func (h *httpHandler) handleCreateRecord(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	var request recordPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	values, err := request.fieldValues()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.deps.Records.Create(c.Request.Context(), tableID, h.actorID(c), values)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleListRecords(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	skip, limit := paging(c)
	opts := records.ListOptions{Skip: skip, Limit: limit}
	if sortField := c.Query("sort_field"); sortField != "" {
		fieldID, err := strconv.ParseInt(sortField, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sort_field"})
			return
		}
		opts.Sort = &records.SortSpec{FieldID: fieldID, Descending: c.Query("sort_dir") == "desc"}
	}
	if filterField := c.Query("filter_field"); filterField != "" {
		fieldID, err := strconv.ParseInt(filterField, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter_field"})
			return
		}
		filter := &records.FilterSpec{FieldID: fieldID}
		if equals, present := c.GetQuery("equals"); present {
			filter.Equals = &equals
		} else if contains, present := c.GetQuery("contains"); present {
			filter.Contains = &contains
		}
		opts.Filter = filter
	}
	listed, err := h.deps.Records.List(c.Request.Context(), tableID, h.actorID(c), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

func (h *httpHandler) handleGetRecord(c *gin.Context) {
	recordID, ok := pathID(c, "recordID")
	if !ok {
		return
	}
	record, err := h.deps.Records.Read(c.Request.Context(), recordID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleUpdateRecord(c *gin.Context) {
	recordID, ok := pathID(c, "recordID")
	if !ok {
		return
	}
	var request recordPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	values, err := request.fieldValues()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.deps.Records.Update(c.Request.Context(), recordID, h.actorID(c), values)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleDeleteRecord(c *gin.Context) {
	recordID, ok := pathID(c, "recordID")
	if !ok {
		return
	}
	if err := h.deps.Records.Delete(c.Request.Context(), recordID, h.actorID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRecordLinks(c *gin.Context) {
	recordID, ok := pathID(c, "recordID")
	if !ok {
		return
	}
	links, err := h.deps.Records.Links(c.Request.Context(), recordID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func (h *httpHandler) handleRecordBacklinks(c *gin.Context) {
	recordID, ok := pathID(c, "recordID")
	if !ok {
		return
	}
	links, err := h.deps.Records.Backlinks(c.Request.Context(), recordID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

type viewPayload struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

func (h *httpHandler) handleCreateView(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	var request viewPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	view, err := h.deps.Views.Create(c.Request.Context(), tableID, h.actorID(c),
		request.Name, views.ViewType(request.Type), request.Config)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleListViews(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	listed, err := h.deps.Views.List(c.Request.Context(), tableID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

func (h *httpHandler) handleGetView(c *gin.Context) {
	viewID, ok := pathID(c, "viewID")
	if !ok {
		return
	}
	view, err := h.deps.Views.Get(c.Request.Context(), viewID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type viewUpdatePayload struct {
	Name   *string        `json:"name"`
	Type   *string        `json:"type"`
	Config map[string]any `json:"config"`
}

func (h *httpHandler) handleUpdateView(c *gin.Context) {
	viewID, ok := pathID(c, "viewID")
	if !ok {
		return
	}
	var request viewUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	update := views.UpdateRequest{Name: request.Name, Config: request.Config}
	if request.Type != nil {
		viewType := views.ViewType(*request.Type)
		update.Type = &viewType
	}
	view, err := h.deps.Views.Update(c.Request.Context(), viewID, h.actorID(c), update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeleteView(c *gin.Context) {
	viewID, ok := pathID(c, "viewID")
	if !ok {
		return
	}
	if err := h.deps.Views.Delete(c.Request.Context(), viewID, h.actorID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type grantPayload struct {
	UserEmail       string `json:"user_email"`
	PermissionLevel string `json:"permission_level"`
}

func (h *httpHandler) handleGrantPermission(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	var request grantPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	level, err := access.ParseLevel(request.PermissionLevel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := h.deps.Users.GetByEmail(c.Request.Context(), request.UserEmail)
	if err != nil {
		h.respondError(c, err)
		return
	}
	permission, err := h.deps.Access.Grant(c.Request.Context(), tableID, h.actorID(c), target.ID, level)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":          target.ID,
		"email":            target.Email,
		"permission_level": permission.Grade,
	})
}

func (h *httpHandler) handleListPermissions(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	permissions, err := h.deps.Access.List(c.Request.Context(), tableID, h.actorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, permissions)
}

func (h *httpHandler) handleRevokePermission(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}
	targetUserID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.deps.Access.Revoke(c.Request.Context(), tableID, h.actorID(c), targetUserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func paging(c *gin.Context) (int, int) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return skip, limit
}

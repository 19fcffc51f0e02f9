package gateway

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err))
		return
	}
	account, session, err := h.accountService.Register(c.Request.Context(), req.Email, req.Secret, req.DisplayName)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.RegisterResponse{
		Account: api.FromAccount(account),
		Session: api.FromSession(session),
	})
}

func (h *Handler) authenticate(c *gin.Context) {
	var req api.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err))
		return
	}
	session, err := h.accountService.Authenticate(c.Request.Context(), req.Email, req.Secret)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromSession(session))
}

func (h *Handler) logout(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	if err := h.accountService.Logout(c.Request.Context(), identity); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getMe(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	account, err := h.accountService.GetAccount(c.Request.Context(), identity.AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromAccount(account))
}

func (h *Handler) updateProfile(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	var req api.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err))
		return
	}
	account, err := h.accountService.UpdateProfile(c.Request.Context(), identity.AccountID, req.DisplayName, req.Email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromAccount(account))
}

func (h *Handler) listOtherAccounts(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	accounts, err := h.accountService.ListOtherAccounts(c.Request.Context(), identity.AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListAccountsResponse{Accounts: api.FromAccounts(accounts)})
}

func (h *Handler) listConversations(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	summaries, err := h.chatService.ListConversations(c.Request.Context(), identity.AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListConversationsResponse{Summaries: api.FromSummaries(summaries)})
}

func (h *Handler) listMessages(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	key, since, err := conversationParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	messages, err := h.chatService.ListMessages(c.Request.Context(), identity.AccountID, key, since)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListMessagesResponse{Messages: api.FromMessages(messages)})
}

func (h *Handler) sendMessage(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	var req api.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err))
		return
	}
	m, err := h.chatService.SendMessage(c.Request.Context(), identity.AccountID, domain.AccountID(req.CounterpartID), req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.FromMessage(m))
}

func (h *Handler) searchMessages(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: limit %q", errors.ErrInvalidArgument, raw))
			return
		}
		limit = v
	}
	messages, err := h.chatService.SearchMessages(c.Request.Context(), identity.AccountID, c.Query("q"), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListMessagesResponse{Messages: api.FromMessages(messages)})
}

func identityOf(c *gin.Context) (auth.Identity, bool) {
	identity, err := auth.IdentityFromContext(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return auth.Identity{}, false
	}
	return identity, true
}

func conversationParams(c *gin.Context) (domain.ConversationKey, *domain.Cursor, error) {
	key, err := domain.ParseConversationKey(c.Param("key"))
	if err != nil {
		return "", nil, err
	}
	since, err := domain.ParseCursor(c.Query("since"))
	if err != nil {
		return "", nil, err
	}
	return key, since, nil
}

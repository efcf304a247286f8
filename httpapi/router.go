// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package httpapi implements the Administrative HTTP surface: CRUD over
// vaults, guardians, and transactions, plus the read-only transaction status
// endpoint. This is the "external collaborator" contract the component
// design only names; here it runs against the same Repository and
// VaultRepository the Coordinator and transport packages use.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/vaultguard/mpc-coordinator/crypto"
	"github.com/vaultguard/mpc-coordinator/model"
	"github.com/vaultguard/mpc-coordinator/repository"
	"github.com/vaultguard/mpc-coordinator/tss"
)

// Router builds the administrative HTTP handler. repo backs transaction CRUD,
// vaults backs vault/guardian CRUD, transactionTimeout is the deadline new
// transactions are created with.
type Router struct {
	repo               repository.Repository
	vaults             repository.VaultRepository
	transactionTimeout time.Duration
}

// New constructs a Router and registers its routes on a fresh gin engine,
// wrapped in a CORS handler allowlisting corsOrigins.
func New(repo repository.Repository, vaults repository.VaultRepository, transactionTimeout time.Duration, corsOrigins []string) http.Handler {
	rt := &Router{repo: repo, vaults: vaults, transactionTimeout: transactionTimeout}

	engine := gin.Default()
	rt.register(engine)

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(engine)
}

func (rt *Router) register(engine *gin.Engine) {
	vaults := engine.Group("/vaults")
	{
		vaults.POST("", rt.createVault)
		vaults.GET("", rt.listVaults)
		vaults.GET("/:vaultId", rt.getVault)
		vaults.PATCH("/:vaultId", rt.patchVault)
		vaults.DELETE("/:vaultId", rt.deleteVault)

		vaults.POST("/:vaultId/guardians", rt.createGuardian)
		vaults.GET("/:vaultId/guardians", rt.listGuardians)
	}

	guardians := engine.Group("/guardians")
	{
		guardians.GET("/:guardianId", rt.getGuardian)
		guardians.PATCH("/:guardianId", rt.patchGuardian)
		guardians.DELETE("/:guardianId", rt.deleteGuardian)
	}

	transactions := engine.Group("/transactions")
	{
		transactions.POST("", rt.createTransaction)
		transactions.GET("", rt.listTransactions)
		transactions.GET("/:transactionId", rt.getTransaction)
		transactions.PATCH("/:transactionId", rt.patchTransaction)
		transactions.DELETE("/:transactionId", rt.deleteTransaction)
		transactions.GET("/:transactionId/status", rt.getTransactionStatus)
	}
}

// --- vaults ---

type createVaultRequest struct {
	Threshold      int      `json:"threshold" binding:"required"`
	TotalGuardians int      `json:"totalGuardians" binding:"required"`
	GuardianIDs    []string `json:"guardianIds"`
	MasterPublicKey string  `json:"masterPublicKey"`
}

func (rt *Router) createVault(c *gin.Context) {
	var req createVaultRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	v := &model.Vault{
		VaultID:         uuid.NewString(),
		Threshold:       req.Threshold,
		TotalGuardians:  req.TotalGuardians,
		GuardianIDs:     req.GuardianIDs,
		MasterPublicKey: req.MasterPublicKey,
	}
	if err := rt.vaults.CreateVault(c.Request.Context(), v); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (rt *Router) listVaults(c *gin.Context) {
	vs, err := rt.vaults.ListVaults(c.Request.Context())
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vaults": vs})
}

func (rt *Router) getVault(c *gin.Context) {
	v, err := rt.vaults.GetVault(c.Request.Context(), c.Param("vaultId"))
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (rt *Router) patchVault(c *gin.Context) {
	vaultID := c.Param("vaultId")
	existing, err := rt.vaults.GetVault(c.Request.Context(), vaultID)
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	var req createVaultRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Threshold != 0 {
		existing.Threshold = req.Threshold
	}
	if req.TotalGuardians != 0 {
		existing.TotalGuardians = req.TotalGuardians
	}
	if req.GuardianIDs != nil {
		existing.GuardianIDs = req.GuardianIDs
	}
	if req.MasterPublicKey != "" {
		existing.MasterPublicKey = req.MasterPublicKey
	}
	if err := rt.vaults.UpdateVault(c.Request.Context(), existing); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (rt *Router) deleteVault(c *gin.Context) {
	if err := rt.vaults.DeleteVault(c.Request.Context(), c.Param("vaultId")); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- guardians ---

type createGuardianRequest struct {
	GuardianID string `json:"guardianId" binding:"required"`
	ShareID    string `json:"shareId"`
}

func (rt *Router) createGuardian(c *gin.Context) {
	vaultID := c.Param("vaultId")
	var req createGuardianRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	g := &model.Guardian{
		GuardianID: req.GuardianID,
		VaultID:    vaultID,
		Status:     model.GuardianStatusPending,
		ShareID:    req.ShareID,
	}
	if err := rt.vaults.CreateGuardian(c.Request.Context(), g); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (rt *Router) listGuardians(c *gin.Context) {
	gs, err := rt.vaults.ListGuardians(c.Request.Context(), c.Param("vaultId"))
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guardians": gs})
}

func (rt *Router) getGuardian(c *gin.Context) {
	g, err := rt.vaults.GetGuardian(c.Request.Context(), c.Param("guardianId"))
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type patchGuardianRequest struct {
	Status model.GuardianStatus `json:"status"`
}

func (rt *Router) patchGuardian(c *gin.Context) {
	guardianID := c.Param("guardianId")
	existing, err := rt.vaults.GetGuardian(c.Request.Context(), guardianID)
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	var req patchGuardianRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status != "" {
		existing.Status = req.Status
	}
	if err := rt.vaults.UpdateGuardian(c.Request.Context(), existing); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (rt *Router) deleteGuardian(c *gin.Context) {
	if err := rt.vaults.DeleteGuardian(c.Request.Context(), c.Param("guardianId")); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- transactions ---

type createTransactionRequest struct {
	VaultID            string `json:"vaultId" binding:"required"`
	SignaturesRequired int    `json:"signaturesRequired" binding:"required"`
	MessageHashHex     string `json:"messageHash" binding:"required"`
}

func (rt *Router) createTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := rt.vaults.GetVault(c.Request.Context(), req.VaultID); err != nil {
		writeRepoErr(c, err)
		return
	}
	if _, err := crypto.HashFromHex(req.MessageHashHex); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(tss.KindInvalidPayload), "detail": err.Error()})
		return
	}
	now := time.Now()
	tx := &model.Transaction{
		TransactionID:      uuid.NewString(),
		VaultID:            req.VaultID,
		SignaturesRequired: req.SignaturesRequired,
		MessageHashHex:     req.MessageHashHex,
		Status:             model.StatusPending,
		CreatedAt:          now,
		Deadline:           now.Add(rt.transactionTimeout),
	}
	if err := rt.repo.Create(c.Request.Context(), tx); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (rt *Router) listTransactions(c *gin.Context) {
	vaultID := c.Query("vaultId")
	if vaultID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vaultId query parameter is required"})
		return
	}
	txs, err := rt.repo.ListAll(c.Request.Context(), vaultID)
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (rt *Router) getTransaction(c *gin.Context) {
	tx, err := rt.repo.Get(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

type patchTransactionRequest struct {
	FailureReason string `json:"failureReason"`
}

// patchTransaction is limited to annotation fields; round progression only
// ever happens through the coordinator's atomic-update path, never here.
func (rt *Router) patchTransaction(c *gin.Context) {
	transactionID := c.Param("transactionId")
	tx, err := rt.repo.Get(c.Request.Context(), transactionID)
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	var req patchTransactionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	_, err = rt.repo.AtomicUpdate(c.Request.Context(), transactionID, tx.Status, func(working *model.Transaction) error {
		if req.FailureReason != "" {
			working.FailureReason = req.FailureReason
		}
		return nil
	})
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	updated, err := rt.repo.Get(c.Request.Context(), transactionID)
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (rt *Router) deleteTransaction(c *gin.Context) {
	if err := rt.repo.Delete(c.Request.Context(), c.Param("transactionId")); err != nil {
		writeRepoErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type transactionStatusResponse struct {
	Status       model.Status `json:"status"`
	Participants []string     `json:"participants"`
	RoundCounts  roundCounts  `json:"roundCounts"`
	Error        string       `json:"error,omitempty"`
}

type roundCounts struct {
	Round1 int `json:"round1"`
	Round3 int `json:"round3"`
}

func (rt *Router) getTransactionStatus(c *gin.Context) {
	tx, err := rt.repo.Get(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		writeRepoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, transactionStatusResponse{
		Status:       tx.Status,
		Participants: tx.ParticipatingGuardians,
		RoundCounts:  roundCounts{Round1: len(tx.Round1Data), Round3: len(tx.Round3Data)},
		Error:        tx.FailureReason,
	})
}

func writeRepoErr(c *gin.Context, err error) {
	switch err {
	case repository.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case repository.ErrDuplicate:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case repository.ErrStatusConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case repository.ErrPayloadConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

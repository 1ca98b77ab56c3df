package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/voice-agent-saas/shared/accounting"
	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const (
	dateLayout        = "2006-01-02"
	defaultUsageLimit = 100
)

// SelectPlanRequest represents the plan selection request
type SelectPlanRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// BalanceResponse is the prepaid minute balance of a tenant
type BalanceResponse struct {
	MinutesBalance int64 `json:"minutes_balance"`
}

// parseTime accepts RFC3339 or a plain date. A plain date used as the end of a
// window covers that whole day.
func parseTime(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("Invalid date " + value + ", expected YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		// microsecond precision matches the postgres timestamp column
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}

// periodFromQuery reads the optional ?from= and ?to= parameters
func periodFromQuery(c *gin.Context) (billing.Period, error) {
	var period billing.Period
	if from := c.Query("from"); from != "" {
		t, err := parseTime(from, false)
		if err != nil {
			return period, err
		}
		period.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := parseTime(to, true)
		if err != nil {
			return period, err
		}
		period.To = &t
	}
	return period, nil
}

func handleListPlans(catalog *billing.Catalog, activeOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := catalog.ListPlans(c.Request.Context(), activeOnly)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Pricing plans retrieved successfully", plans)
	}
}

func handleListPackages(catalog *billing.Catalog, activeOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		packages, err := catalog.ListPackages(c.Request.Context(), activeOnly)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Minute packages retrieved successfully", packages)
	}
}

// handleGetRate returns the rate currently applied to the caller's tenant
func handleGetRate(pricing *billing.Pricing) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		rate, err := pricing.RateForTenant(c.Request.Context(), user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Current rate retrieved successfully", rate)
	}
}

func handleSelectPlan(pricing *billing.Pricing) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req SelectPlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		planID, err := uuid.Parse(req.PlanID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid plan_id")
			return
		}

		plan, err := pricing.SelectPlan(c.Request.Context(), user.TenantID, planID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Pricing plan selected", plan)
	}
}

func handlePurchasePackage(pricing *billing.Pricing) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		packageID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		purchase, err := pricing.PurchasePackage(c.Request.Context(), user.TenantID, packageID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Minute package purchased", purchase)
	}
}

func handleListPurchases(pricing *billing.Pricing) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		purchases, err := pricing.ListPurchases(c.Request.Context(), user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Purchases retrieved successfully", purchases)
	}
}

func handleBalance(pricing *billing.Pricing) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		balance, err := pricing.Balance(c.Request.Context(), user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Balance retrieved successfully", BalanceResponse{MinutesBalance: balance})
	}
}

// handleListUsage lists usage records, ?from=&to=&limit= (default 100)
func handleListUsage(ledger *billing.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		period, err := periodFromQuery(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		limit := defaultUsageLimit
		if raw := c.Query("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
				utils.BadRequestResponse(c, "Invalid limit")
				return
			}
		}

		records, err := ledger.ListUsage(c.Request.Context(), user.TenantID, period, limit)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Usage retrieved successfully", records)
	}
}

func handleUsageSummary(ledger *billing.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		period, err := periodFromQuery(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		summary, err := ledger.Summary(c.Request.Context(), user.TenantID, period)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Usage summary retrieved successfully", summary)
	}
}

func handleListOwnInvoices(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		list, err := invoices.List(c.Request.Context(), billing.InvoiceFilter{TenantID: &user.TenantID})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invoices retrieved successfully", list)
	}
}

// handleGetOwnInvoice answers 404 for invoices of other tenants
func handleGetOwnInvoice(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		invoiceID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		invoice, err := invoices.Get(c.Request.Context(), invoiceID, &user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invoice retrieved successfully", invoice)
	}
}

func handleCreatePlan(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req billing.PlanInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		plan, err := catalog.CreatePlan(c.Request.Context(), req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Pricing plan created successfully", plan)
	}
}

func handleGetPlan(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		plan, err := catalog.GetPlan(c.Request.Context(), planID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Pricing plan retrieved successfully", plan)
	}
}

func handleUpdatePlan(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req billing.PlanInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		plan, err := catalog.UpdatePlan(c.Request.Context(), planID, req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Pricing plan updated successfully", plan)
	}
}

// handleDeactivatePlan hides the plan; tenants already on it keep its rate
func handleDeactivatePlan(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := catalog.DeactivatePlan(c.Request.Context(), planID); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Pricing plan deactivated", nil)
	}
}

func handleCreatePackage(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req billing.PackageInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		pkg, err := catalog.CreatePackage(c.Request.Context(), req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Minute package created successfully", pkg)
	}
}

func handleGetPackage(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		packageID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		pkg, err := catalog.GetPackage(c.Request.Context(), packageID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Minute package retrieved successfully", pkg)
	}
}

func handleUpdatePackage(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		packageID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req billing.PackageInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		pkg, err := catalog.UpdatePackage(c.Request.Context(), packageID, req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Minute package updated successfully", pkg)
	}
}

func handleDeactivatePackage(catalog *billing.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		packageID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := catalog.DeactivatePackage(c.Request.Context(), packageID); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Minute package deactivated", nil)
	}
}

// handleListInvoices lists all invoices, ?tenant_id=&status=
func handleListInvoices(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := billing.InvoiceFilter{Status: c.Query("status")}
		if raw := c.Query("tenant_id"); raw != "" {
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				utils.BadRequestResponse(c, "Invalid tenant_id")
				return
			}
			filter.TenantID = &tenantID
		}

		list, err := invoices.List(c.Request.Context(), filter)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invoices retrieved successfully", list)
	}
}

// handleGenerateInvoice bills ?period_start=&period_end= for one tenant. Both
// bounds are required and inclusive.
func handleGenerateInvoice(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := utils.ParseUUIDParam(c, "tenant_id")
		if !ok {
			return
		}

		rawStart, rawEnd := c.Query("period_start"), c.Query("period_end")
		if rawStart == "" || rawEnd == "" {
			utils.BadRequestResponse(c, "period_start and period_end are required")
			return
		}
		start, err := parseTime(rawStart, false)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		end, err := parseTime(rawEnd, true)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		invoice, err := invoices.Generate(c.Request.Context(), tenantID, start, end)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Invoice generated successfully", invoice)
	}
}

func handleExportInvoice(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		invoice, err := invoices.Export(c.Request.Context(), invoiceID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invoice exported successfully", invoice)
	}
}

func handleCancelInvoice(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		invoice, err := invoices.Cancel(c.Request.Context(), invoiceID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invoice cancelled", invoice)
	}
}

func handleMarkPaid(invoices *billing.InvoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		invoice, err := invoices.MarkPaid(c.Request.Context(), invoiceID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invoice marked as paid", invoice)
	}
}

// handleAccountingStatus reports the accounting client's breaker state
func handleAccountingStatus(client *accounting.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			utils.OKResponse(c, "Accounting export disabled", gin.H{"enabled": false})
			return
		}
		status := client.GetStatus()
		status["enabled"] = true
		utils.OKResponse(c, "Accounting status retrieved successfully", status)
	}
}

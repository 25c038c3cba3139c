package sheetsync

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"bitbucket.org/mmdatafocus/shopops_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RegisterRoutes mounts the pipeline's HTTP surface on an /api group.
// The sheet ingestion endpoints are called by the spreadsheet's edit
// trigger script and sit behind the shared webhook secret; the rest serve
// the operator UI.
func RegisterRoutes(api *gin.RouterGroup, resolver *Resolver) {
	synchronizer := NewSynchronizer(resolver)
	importer := NewImporter(resolver)

	sheets := api.Group("/sheets", webhookAuth())
	sheets.POST("/sync", syncHandler(synchronizer))
	sheets.POST("/bulk-import", bulkImportHandler(importer))
	sheets.POST("/import-workbook", importWorkbookHandler(importer))

	api.GET("/batches", listBatchesHandler())

	api.GET("/posted-items", listPostedItemsHandler())
	api.POST("/posted-items", createPostedItemHandler(resolver))
	api.PATCH("/posted-items/:id", updatePostedItemHandler())
	api.DELETE("/posted-items/:id", deletePostedItemHandler())

	api.GET("/analytics/unsold", unsoldReportHandler())
	api.POST("/analytics/unsold", reconcileHandler())
}

// webhookAuth checks the shared bearer secret the sheet trigger script
// sends. An empty SHEETS_WEBHOOK_SECRET disables the check for local work.
func webhookAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := config.GetWebhookSecret()
		if secret == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+secret {
			config.GetLogger().WithField("module", ModuleSheetSync).Warn("invalid webhook secret")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func syncHandler(synchronizer *Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload SyncPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			if fields := utils.ProcessValidationErrors(err); fields != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "sheetName, headers and rows are required"})
			return
		}

		ctx := c.Request.Context()
		result, err := synchronizer.SyncSheet(ctx, &payload)
		if err != nil {
			if errors.Is(err, ErrSheetSkipped) {
				c.JSON(http.StatusOK, gin.H{"success": true, "skipped": true, "message": "skipped sheet: " + payload.SheetName})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
			return
		}

		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		config.GetLogger().WithFields(logrus.Fields{
			"module":        ModuleSheetSync,
			"correlationId": correlationId,
			"sheet":         result.SheetName,
			"created":       result.RowsCreated,
			"updated":       result.RowsUpdated,
		}).Info("sheet synced")

		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func bulkImportHandler(importer *Importer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload BulkImportPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sheets are required"})
			return
		}

		result, err := importer.BulkImport(c.Request.Context(), &payload)
		if err != nil {
			if errors.Is(err, ErrImportRunning) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk import failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func importWorkbookHandler(importer *Importer) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not open file"})
			return
		}
		defer file.Close()

		sheets, err := ReadWorkbook(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read workbook"})
			return
		}

		payload := BulkImportPayload{Sheets: sheets}
		if v := c.PostForm("exchangeRate"); v != "" {
			if rate, err := strconv.ParseFloat(v, 64); err == nil {
				payload.ExchangeRate = &rate
			}
		}

		result, err := importer.BulkImport(c.Request.Context(), &payload)
		if err != nil {
			if errors.Is(err, ErrImportRunning) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk import failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func listBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batches, err := models.GetBatches(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch batches"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": batches, "total": len(batches)})
	}
}

func listPostedItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.PostedItemFilter{
			SoldOnly:   c.Query("soldOnly") == "true",
			UnsoldOnly: c.Query("unsoldOnly") == "true",
		}
		if v := c.Query("limit"); v != "" {
			if limit, err := strconv.Atoi(v); err == nil {
				filter.Limit = limit
			}
		}

		items, err := models.GetPostedItems(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch posted items"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
	}
}

type postedItemPayload struct {
	ProductName     string           `json:"productName" binding:"required"`
	Category        *string          `json:"category"`
	Brand           *string          `json:"brand"`
	SourceStore     *string          `json:"sourceStore"`
	CostUsd         *decimal.Decimal `json:"costUsd"`
	ListedPriceVnd  *decimal.Decimal `json:"listedPriceVnd"`
	GeneratedPostId *int             `json:"generatedPostId"`
}

// createPostedItemHandler logs a posting event. The name is resolved to a
// product identity right away so tier-1 reconciliation can match it later;
// caller-supplied category and brand win over the resolved ones.
func createPostedItemHandler(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload postedItemPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "product name is required"})
			return
		}

		ctx := c.Request.Context()
		item := models.PostedItem{
			ProductName:     payload.ProductName,
			Category:        payload.Category,
			Brand:           payload.Brand,
			SourceStore:     payload.SourceStore,
			CostUsd:         payload.CostUsd,
			ListedPriceVnd:  payload.ListedPriceVnd,
			GeneratedPostId: payload.GeneratedPostId,
		}

		identity := resolver.ResolveName(ctx, payload.ProductName)
		product, err := models.FindOrCreateNormalizedProduct(ctx, config.GetDB(), identity)
		if err != nil {
			config.LogError(config.GetLogger(), ModuleSheetSync, "createPostedItemHandler", "bind product", payload.ProductName, err)
		} else {
			item.ProductId = &product.ID
			if item.Category == nil {
				category := string(identity.Category)
				item.Category = &category
			}
			if item.Brand == nil {
				item.Brand = identity.Brand
			}
		}

		if err := models.CreatePostedItem(ctx, &item); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log posted item"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
	}
}

type postedItemUpdatePayload struct {
	Sold          *bool `json:"sold"`
	MatchedSaleId *int  `json:"matchedSaleId"`
}

func updatePostedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		var payload postedItemUpdatePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		updates := map[string]interface{}{}
		if payload.Sold != nil {
			updates["sold"] = *payload.Sold
		}
		if payload.MatchedSaleId != nil {
			updates["matched_sale_id"] = *payload.MatchedSaleId
			updates["matched_at"] = time.Now()
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		if err := models.UpdatePostedItem(c.Request.Context(), id, updates); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update posted item"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func deletePostedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if err := models.DeletePostedItem(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete posted item"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func unsoldReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days, _ := strconv.Atoi(c.DefaultQuery("days", "14"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		report, err := BuildUnsoldReport(c.Request.Context(), days, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build unsold report"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := Reconcile(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run reconciliation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

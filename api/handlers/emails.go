package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/oneboxhq/onebox/dto"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/tracing"
	"github.com/oneboxhq/onebox/internal/utils"
)

// SearchEmails handles free-text and filtered search over the index
func SearchEmails(index interfaces.EmailIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SearchEmails", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		filter, err := parseFilter(c)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))

		result, err := index.Search(ctx, filter, page, size)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// GetEmail returns a single indexed document
func GetEmail(index interfaces.EmailIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetEmail", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		email, err := index.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if email == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		c.JSON(http.StatusOK, email)
	}
}

// UpdateEmail merges the supplied fields into an existing document
func UpdateEmail(index interfaces.EmailIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "UpdateEmail", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		var request dto.UpdateEmailRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		fields := make(map[string]interface{})
		if request.IsRead != nil {
			fields["is_read"] = *request.IsRead
		}
		if request.IsFlagged != nil {
			fields["is_flagged"] = *request.IsFlagged
		}
		if request.IsInterested != nil {
			fields["is_interested"] = *request.IsInterested
		}
		if request.Categories != nil {
			fields["categories"] = pq.StringArray(request.Categories)
		}
		if request.Suggestions != nil {
			fields["suggestions"] = *request.Suggestions
		}

		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields provided"})
			return
		}

		ok, err := index.Update(ctx, id, fields)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "updated", "id": id})
	}
}

// MarkInterested flags a document for follow-up
func MarkInterested(index interfaces.EmailIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "MarkInterested", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		// The body is optional; an absent body means interested=true.
		var request dto.MarkInterestedRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		interested := utils.GetOrDefault(request.Interested, true)

		ok, err := index.Update(ctx, id, map[string]interface{}{"is_interested": interested})
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "updated", "id": id, "interested": interested})
	}
}

// DeleteEmail removes a document from the index
func DeleteEmail(index interfaces.EmailIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "DeleteEmail", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		ok, err := index.Delete(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}

func parseFilter(c *gin.Context) (interfaces.EmailFilter, error) {
	filter := interfaces.EmailFilter{
		Query:   strings.TrimSpace(c.Query("q")),
		Account: strings.TrimSpace(c.Query("account")),
	}

	if categories := c.Query("categories"); categories != "" {
		for _, category := range strings.Split(categories, ",") {
			if category = strings.TrimSpace(category); category != "" {
				filter.Categories = append(filter.Categories, category)
			}
		}
	}

	if interested := c.Query("interested"); interested != "" {
		value, err := strconv.ParseBool(interested)
		if err != nil {
			return filter, err
		}
		filter.Interested = &value
	}

	if from := c.Query("from"); from != "" {
		value, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, err
		}
		filter.From = &value
	}
	if to := c.Query("to"); to != "" {
		value, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, err
		}
		filter.To = &value
	}

	return filter, nil
}

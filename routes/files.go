package routes

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"ingestloom-backend/models"
	"ingestloom-backend/utils"

	"github.com/gin-gonic/gin"
)

// handleUserFiles lists a user's ingested artifacts, newest first. File
// names carry the type: "text-" and "crawl-" prefixes come from the ingest
// handler, everything else is a document upload. Crawl entries are displayed
// by the hostname recorded in their sidecar.
func handleUserFiles(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		us, err := deps.Storage.ForUser(c.Query("userId"))
		if err != nil {
			utils.RespondWithInternalError(c, "failed to access storage", nil)
			return
		}

		names, err := us.List()
		if err != nil {
			utils.RespondWithInternalError(c, "failed to list files", nil)
			return
		}

		infos := make([]models.FileInfo, 0, len(names))
		for _, name := range names {
			if strings.HasSuffix(name, ".meta.json") {
				continue
			}
			stat, err := us.Stat(name)
			if err != nil {
				continue
			}

			info := models.FileInfo{
				Name:       name,
				Type:       "document",
				UploadDate: stat.ModTime().UTC(),
				Size:       stat.Size(),
			}

			switch {
			case strings.HasPrefix(name, "text-"):
				info.Type = "text"
				info.Name = "Text Data"
			case strings.HasPrefix(name, "crawl-"):
				info.Type = "crawl"
				info.Name = "Crawled Website"
				if raw, err := us.Read(name + ".meta.json"); err == nil {
					var meta models.CrawlMeta
					if json.Unmarshal(raw, &meta) == nil && meta.OriginalURL != "" {
						info.OriginalURL = meta.OriginalURL
						if u, err := url.Parse(meta.OriginalURL); err == nil && u.Hostname() != "" {
							info.Name = strings.TrimPrefix(u.Hostname(), "www.")
						}
					}
				}
			}

			infos = append(infos, info)
		}

		sort.Slice(infos, func(i, j int) bool {
			return infos[i].UploadDate.After(infos[j].UploadDate)
		})

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"userId":     us.UserID(),
			"files":      infos,
			"totalFiles": len(infos),
		})
	}
}

package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportSession downloads the session's count report.
func (s *Server) exportSession(c *gin.Context) {
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.deps.Export.SessionXLSX(c.Request.Context(), sess.ID)
	if err != nil {
		requestLogger(c).Error("export.xlsx.failed", "session_id", sess.ID, "err", err)
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, sess.SessionNumber))
	c.Data(http.StatusOK, xlsxContentType, data)
}

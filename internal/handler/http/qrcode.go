package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/sirupsen/logrus"

	"clipsync/internal/service"
)

const qrCodeSize = 256

// writeQRCode 把邀请码渲染为 PNG 二维码
func writeQRCode(c *gin.Context, payload []byte) {
	png, err := qrcode.Encode(string(payload), qrcode.Medium, qrCodeSize)
	if err != nil {
		logrus.WithError(err).Error("Failed to render QR code")
		HandleServiceError(c, service.InternalError("failed to render QR code", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

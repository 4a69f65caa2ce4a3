package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	"image/png"
	"log"
	"math"
	"net/http"
	"strings"

	gowebp "github.com/gen2brain/webp"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"scene-composer-server/modules/common/model"
)

// MaxSubjectSide - 업로드 이미지 최대 변 길이 (넘으면 축소)
const MaxSubjectSide = 2048

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// DataURI - data:<mime>;base64,<payload>
func DataURI(img model.Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = SniffMIME(img.Data)
	}
	return "data:" + mime + ";base64," + ConvertImageToBase64(img.Data)
}

// ParseDataURI - data URI를 바이너리 + MIME으로 분리
func ParseDataURI(uri string) (model.Image, error) {
	if !strings.HasPrefix(uri, "data:") {
		return model.Image{}, fmt.Errorf("not a data URI")
	}

	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return model.Image{}, fmt.Errorf("malformed data URI: missing payload")
	}

	mime, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return model.Image{}, fmt.Errorf("unsupported data URI encoding: %q", encoding)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return model.Image{}, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	if len(data) == 0 {
		return model.Image{}, fmt.Errorf("empty data URI payload")
	}

	if mime == "" {
		mime = SniffMIME(data)
	}
	return model.Image{Data: data, MIMEType: mime}, nil
}

// SniffMIME - 바이트에서 이미지 MIME 추정
func SniffMIME(data []byte) string {
	// http.DetectContentType은 WebP를 인식 못하는 버전이 있음
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	return http.DetectContentType(data)
}

// DecodeImage - PNG/JPEG/WebP 자동 감지 디코딩
func DecodeImage(data []byte) (image.Image, string, error) {
	if SniffMIME(data) == "image/webp" {
		img, err := gowebp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode WebP: %w", err)
		}
		return img, "webp", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// NormalizeSubject - 업로드 이미지 검증 + 너무 크면 축소해서 PNG로 재인코딩
func NormalizeSubject(data []byte) (model.Image, error) {
	img, format, err := DecodeImage(data)
	if err != nil {
		return model.Image{}, err
	}

	b := img.Bounds()
	if b.Dx() <= MaxSubjectSide && b.Dy() <= MaxSubjectSide {
		return model.Image{Data: data, MIMEType: SniffMIME(data)}, nil
	}

	resized := Downscale(img, MaxSubjectSide)
	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return model.Image{}, fmt.Errorf("failed to encode resized image: %w", err)
	}

	log.Printf("📐 Subject image downscaled (%s %dx%d → %dx%d)", format, b.Dx(), b.Dy(),
		resized.Bounds().Dx(), resized.Bounds().Dy())
	return model.Image{Data: buf.Bytes(), MIMEType: "image/png"}, nil
}

// ConvertToWebP - 이미지 바이너리를 WebP로 변환
func ConvertToWebP(data []byte, quality float32) ([]byte, error) {
	if SniffMIME(data) == "image/webp" {
		return data, nil
	}

	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("✅ Image converted to WebP: %d bytes → %d bytes (%.1f%% reduction)",
		len(data), len(webpData),
		float64(len(data)-len(webpData))/float64(len(data))*100)

	return webpData, nil
}

// Downscale - 긴 변이 maxSide가 되도록 비율 유지 축소 (Nearest Neighbor)
func Downscale(src image.Image, maxSide int) image.Image {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()

	scale := math.Min(float64(maxSide)/float64(srcWidth), float64(maxSide)/float64(srcHeight))
	if scale >= 1 {
		return src
	}

	newWidth := max(1, int(float64(srcWidth)*scale))
	newHeight := max(1, int(float64(srcHeight)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := srcBounds.Min.X + int(float64(x)/scale)
			srcY := srcBounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}

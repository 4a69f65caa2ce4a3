package gemini

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// NewVertexPool - Vertex AI 백엔드 클라이언트 하나로 Pool 생성
// credsJSON이 있으면 서비스 계정 키 사용, 없으면 Application Default Credentials
func NewVertexPool(ctx context.Context, project, location string, credsJSON []byte, rps float64) (*Pool, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex AI project is required")
	}

	cfg := &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}

	if len(credsJSON) > 0 {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{cloudPlatformScope},
			CredentialsJSON: credsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("invalid Vertex AI credentials: %w", err)
		}
		cfg.Credentials = creds
		log.Println("✅ [VertexAI] Using explicit service account credentials")
	} else {
		log.Println("⚠️  [VertexAI] No explicit credentials found, using Application Default Credentials")
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	log.Printf("✅ [VertexAI] Client initialized for project=%s, location=%s", project, location)
	return newPool([]*genai.Client{client}, rps), nil
}

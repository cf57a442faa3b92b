package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

const defaultVisionPrompt = "Describe this image and list the people or " +
	"objects you can detect in it."

// DescribeImage sends the image to the hosted vision model as a base64
// data URL and returns the model's description.
func (c *Client) DescribeImage(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("describe image: empty image payload")
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultVisionPrompt
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.VisionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		c.metrics.IncProviderError("vision")
		return "", fmt.Errorf("describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.metrics.IncProviderError("vision")
		return "", fmt.Errorf("describe image: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

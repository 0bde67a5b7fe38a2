package sns

import "github.com/zauberware/smshog/internal/ordered"

func publishResponse(messageID, requestID string) ordered.Map {
	return ordered.Map{
		{Key: "PublishResponse", Value: ordered.Map{
			{Key: "PublishResult", Value: ordered.Map{
				{Key: "MessageId", Value: messageID},
			}},
			{Key: "ResponseMetadata", Value: responseMetadata(requestID)},
		}},
	}
}

func setSMSAttributesResponse(requestID string) ordered.Map {
	return ordered.Map{
		{Key: "SetSMSAttributesResponse", Value: ordered.Map{
			{Key: "ResponseMetadata", Value: responseMetadata(requestID)},
		}},
	}
}

func errorResponse(errType, code, message, requestID string) ordered.Map {
	return ordered.Map{
		{Key: "ErrorResponse", Value: ordered.Map{
			{Key: "Error", Value: ordered.Map{
				{Key: "Type", Value: errType},
				{Key: "Code", Value: code},
				{Key: "Message", Value: message},
			}},
			{Key: "RequestId", Value: requestID},
		}},
	}
}

func responseMetadata(requestID string) ordered.Map {
	return ordered.Map{{Key: "RequestId", Value: requestID}}
}

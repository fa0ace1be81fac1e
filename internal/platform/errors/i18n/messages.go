package i18n

import "golang.org/x/text/language"

const (
	CodeRequestFailed     = "REQUEST_FAILED"
	CodeUnknown           = "UNKNOWN_ERROR"
	CodeGraphQL           = "GRAPHQL_ERROR"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeLinksLoadFailed   = "LINKS_LOAD_FAILED"
	CodeLinkCreateFailed  = "LINK_CREATE_FAILED"
	CodeLinkUpdateFailed  = "LINK_UPDATE_FAILED"
	CodeLinkDeleteFailed  = "LINK_DELETE_FAILED"
	CodeLinkReorderFailed = "LINK_REORDER_FAILED"
	CodeLinkToggleFailed  = "LINK_TOGGLE_FAILED"
	CodeReorderInFlight   = "REORDER_IN_FLIGHT"
	CodeInvalidLinkID     = "INVALID_LINK_ID"
	CodeProfileNotFound   = "PROFILE_NOT_FOUND"
	CodeLinkNotFound      = "LINK_NOT_FOUND"
)

var builtin = map[language.Tag]map[Code]string{
	language.AmericanEnglish: {
		CodeRequestFailed:     "The request failed.",
		CodeUnknown:           "An unknown error occurred.",
		CodeGraphQL:           "A GraphQL error occurred.",
		CodeSessionExpired:    "Your session has expired. Please sign in again.",
		CodeLinksLoadFailed:   "Failed to load links.",
		CodeLinkCreateFailed:  "Failed to create the link.",
		CodeLinkUpdateFailed:  "Failed to update the link.",
		CodeLinkDeleteFailed:  "Failed to delete the link.",
		CodeLinkReorderFailed: "Failed to change the link order.",
		CodeLinkToggleFailed:  "Failed to change the link status.",
		CodeReorderInFlight:   "A reorder is already being saved.",
		CodeInvalidLinkID:     "Invalid link id %q.",
		CodeProfileNotFound:   "User %q was not found.",
		CodeLinkNotFound:      "Link %q is not in the collection.",
	},
	language.Korean: {
		CodeRequestFailed:     "요청에 실패했습니다.",
		CodeUnknown:           "알 수 없는 오류가 발생했습니다.",
		CodeGraphQL:           "GraphQL 오류가 발생했습니다.",
		CodeSessionExpired:    "세션이 만료되었습니다. 다시 로그인해주세요.",
		CodeLinksLoadFailed:   "링크 목록을 불러오는데 실패했습니다.",
		CodeLinkCreateFailed:  "링크 생성에 실패했습니다.",
		CodeLinkUpdateFailed:  "링크 수정에 실패했습니다.",
		CodeLinkDeleteFailed:  "링크 삭제에 실패했습니다.",
		CodeLinkReorderFailed: "순서 변경에 실패했습니다.",
		CodeLinkToggleFailed:  "링크 상태 변경에 실패했습니다.",
		CodeReorderInFlight:   "순서 변경을 저장하는 중입니다.",
		CodeInvalidLinkID:     "유효하지 않은 링크 ID입니다: %q",
		CodeProfileNotFound:   "'%s' 사용자를 찾을 수 없습니다.",
		CodeLinkNotFound:      "'%s' 링크를 찾을 수 없습니다.",
	},
}

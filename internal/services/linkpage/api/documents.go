package api

// Field selections shared by the documents below.
const (
	userFields = `id username email displayName bio avatarUrl theme bgColor isActive createdAt updatedAt`
	linkFields = `id userId title url description thumbnailUrl faviconUrl position isActive clickCount scheduledStart scheduledEnd isSensitive linkType createdAt updatedAt`
)

const (
	RegisterMutation = `mutation Register($input: RegisterInput!) {
  register(input: $input) { ` + userFields + ` }
}`

	LoginMutation = `mutation Login($input: LoginInput!) {
  login(input: $input) { accessToken refreshToken tokenType }
}`

	RefreshTokenMutation = `mutation RefreshToken($input: RefreshTokenInput!) {
  refreshToken(input: $input) { accessToken refreshToken tokenType }
}`

	ChangePasswordMutation = `mutation ChangePassword($input: ChangePasswordInput!) {
  changePassword(input: $input)
}`

	DeleteAccountMutation = `mutation DeleteAccount {
  deleteAccount
}`

	MeQuery = `query Me {
  me { ` + userFields + ` }
}`
)

const (
	LinksQuery = `query Links {
  links { ` + linkFields + ` }
}`

	CreateLinkMutation = `mutation CreateLink($input: CreateLinkInput!) {
  createLink(input: $input) { ` + linkFields + ` }
}`

	UpdateLinkMutation = `mutation UpdateLink($linkId: UUID!, $input: UpdateLinkInput!) {
  updateLink(linkId: $linkId, input: $input) { ` + linkFields + ` }
}`

	DeleteLinkMutation = `mutation DeleteLink($linkId: UUID!) {
  deleteLink(linkId: $linkId)
}`

	ReorderLinksMutation = `mutation ReorderLinks($items: [ReorderItemInput!]!) {
  reorderLinks(items: $items) { ` + linkFields + ` }
}`

	ToggleLinkMutation = `mutation ToggleLink($linkId: UUID!) {
  toggleLink(linkId: $linkId) { ` + linkFields + ` }
}`
)

const (
	MyProfileQuery = `query MyProfile {
  myProfile { ` + userFields + ` }
}`

	UpdateProfileMutation = `mutation UpdateProfile($input: UpdateProfileInput!) {
  updateProfile(input: $input) { ` + userFields + ` }
}`
)

const (
	SummaryQuery = `query Summary {
  summary { totalClicks totalViews totalLinks todayClicks todayViews clickThroughRate }
}`

	LinkStatsQuery = `query LinkStats {
  linkStats { id title url clickCount isActive }
}`

	ViewStatsQuery = `query ViewStats($days: Int!) {
  viewStats(days: $days) { days totalViews daily { date viewCount uniqueVisitors } }
}`

	TopLinksQuery = `query TopLinks($limit: Int!) {
  topLinks(limit: $limit) { id title url clickCount ctr }
}`

	RecentClicksQuery = `query RecentClicks($limit: Int!) {
  recentClicks(limit: $limit) { linkId title clickedAt visitorIp }
}`
)
